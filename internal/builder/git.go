package builder

import (
	"github.com/go-git/go-git/v6"
)

// Revision returns the HEAD commit of the git repository containing dir,
// suffixed with "-dirty" when the worktree has uncommitted changes.
func Revision(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	rev := head.Hash().String()

	wt, err := repo.Worktree()
	if err != nil {
		return rev, nil // bare repository
	}
	status, err := wt.Status()
	if err != nil {
		return "", err
	}
	if !status.IsClean() {
		rev += "-dirty"
	}
	return rev, nil
}

// InitRepository creates an empty git repository in dir.
func InitRepository(dir string) error {
	_, err := git.PlainInit(dir, false)
	return err
}
