package git_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loambase/loam/pkg/git"
)

func TestGit(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Git Suite")
}

var _ = Describe("RepoName", func() {
	It("always returns a non-empty scope", func() {
		// Inside a repo this is the toplevel base name; outside it
		// falls back to the working directory base name.
		Expect(git.RepoName()).ToNot(BeEmpty())
	})
})
