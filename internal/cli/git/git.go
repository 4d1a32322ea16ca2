package git

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/onehub/kss/pkg/kss"
)

// GoGitProvider implements kss.GitMetadataProvider using the go-git library.
// Lookups are read only and never shell out to a git binary, so the provider
// works on machines without git installed.
type GoGitProvider struct {
	logger *slog.Logger
}

// NewGoGitProvider creates a GitMetadataProvider backed by go-git.
func NewGoGitProvider(loggerHandler slog.Handler) kss.GitMetadataProvider {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "gitMetadata"), slog.String("backend", "go-git"))
	return &GoGitProvider{logger: logger}
}

// openRepo opens the repository containing repoPath, searching parent
// directories for the .git directory the way the git CLI does.
func (p *GoGitProvider) openRepo(repoPath string) (*git.Repository, error) {
	absRepoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve repository path %q: %w", kss.ErrGitOperation, repoPath, err)
	}

	repo, err := git.PlainOpenWithOptions(absRepoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: open repository at %q: %w", kss.ErrGitOperation, absRepoPath, err)
	}
	return repo, nil
}

// GetFileMetadata returns last-commit details for filePath as a string map
// with the keys commit, author, authorEmail, dateISO and dateUnix.
//
// Metadata is optional enrichment. Benign conditions such as a missing
// repository, an untracked file, or a file outside the worktree yield an empty
// map and a nil error; only a repository that exists but cannot be opened
// produces an error, wrapped with kss.ErrGitOperation.
func (p *GoGitProvider) GetFileMetadata(repoPath, filePath string) (map[string]string, error) {
	logArgs := []any{slog.String("repo", repoPath), slog.String("file", filePath)}
	p.logger.Debug("Looking up last commit for file", logArgs...)

	repo, err := p.openRepo(repoPath)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			p.logger.Debug("No repository found, skipping git metadata", logArgs...)
			return map[string]string{}, nil
		}
		p.logger.Warn("Failed to open repository for metadata lookup", append(logArgs, slog.Any("error", err))...)
		return nil, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		p.logger.Debug("Repository has no worktree, skipping git metadata", append(logArgs, slog.Any("error", err))...)
		return map[string]string{}, nil
	}

	relPath, ok := p.worktreeRelPath(worktree.Filesystem.Root(), filePath, logArgs)
	if !ok {
		return map[string]string{}, nil
	}

	// Most recent commit touching the file comes first. An empty repository
	// or a path with no history surfaces as an error or EOF below, both of
	// which are benign here.
	logIter, err := repo.Log(&git.LogOptions{
		FileName: &relPath,
		Order:    git.LogOrderCommitterTime,
	})
	if err != nil {
		p.logger.Debug("No git history available for file", append(logArgs, slog.Any("error", err))...)
		return map[string]string{}, nil
	}
	defer logIter.Close()

	commit, err := logIter.Next()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, storer.ErrStop) {
			p.logger.Debug("File has no commit history", logArgs...)
		} else {
			p.logger.Debug("Failed to iterate git history for file", append(logArgs, slog.Any("error", err))...)
		}
		return map[string]string{}, nil
	}

	return map[string]string{
		"commit":      commit.Hash.String(),
		"author":      commit.Author.Name,
		"authorEmail": commit.Author.Email,
		"dateISO":     commit.Author.When.UTC().Format(time.RFC3339),
		"dateUnix":    fmt.Sprintf("%d", commit.Author.When.Unix()),
	}, nil
}

// worktreeRelPath maps filePath onto the repository worktree. The boolean is
// false when the file lies outside the worktree or the path cannot be
// resolved.
func (p *GoGitProvider) worktreeRelPath(worktreeRoot, filePath string, logArgs []any) (string, bool) {
	absFilePath, err := filepath.Abs(filePath)
	if err != nil {
		p.logger.Debug("Cannot resolve file path for git metadata", append(logArgs, slog.Any("error", err))...)
		return "", false
	}

	relPath, err := filepath.Rel(worktreeRoot, absFilePath)
	if err != nil {
		p.logger.Debug("Cannot relate file path to worktree root", append(logArgs, slog.String("root", worktreeRoot), slog.Any("error", err))...)
		return "", false
	}
	if strings.HasPrefix(filepath.Clean(relPath), "..") {
		p.logger.Debug("File is outside the repository worktree, skipping git metadata", append(logArgs, slog.String("relPath", relPath))...)
		return "", false
	}
	return filepath.ToSlash(relPath), true
}
