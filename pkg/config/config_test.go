package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/loambase/loam/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config loading", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.Load(v)
		Expect(err).NotTo(HaveOccurred())

		defaults := config.NewDefaultConfig()
		Expect(cfg.Version).To(Equal(defaults.Version))
		Expect(cfg.Database.URL).To(Equal(defaults.Database.URL))
		Expect(cfg.Embedding.Provider).To(Equal(defaults.Embedding.Provider))
		Expect(cfg.Embedding.Model).To(Equal(defaults.Embedding.Model))
		Expect(cfg.Embedding.Dimensions).To(Equal(defaults.Embedding.Dimensions))
		Expect(cfg.LLM.Model).To(Equal(defaults.LLM.Model))
		Expect(cfg.Events.Provider).To(Equal(defaults.Events.Provider))
		Expect(cfg.Memory.EpisodeTTLDays).To(Equal(defaults.Memory.EpisodeTTLDays))
		Expect(cfg.Memory.EpisodeCapacity).To(Equal(defaults.Memory.EpisodeCapacity))
		Expect(cfg.Entity.FuzzyEnabled).To(Equal(defaults.Entity.FuzzyEnabled))
	})

	It("loads values from config.toml", func() {
		data := `version = 0

[database]
url = "postgres://db.internal:5432/loam"

[memory]
episode_capacity = 500

[entity]
fuzzy_enabled = false
`
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.Load(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Database.URL).To(Equal("postgres://db.internal:5432/loam"))
		Expect(cfg.Memory.EpisodeCapacity).To(Equal(500))
		Expect(cfg.Entity.FuzzyEnabled).To(BeFalse())

		// Untouched sections keep their defaults.
		defaults := config.NewDefaultConfig()
		Expect(cfg.Embedding.Model).To(Equal(defaults.Embedding.Model))
	})

	It("lets environment variables override the file", func() {
		data := "[database]\nurl = \"postgres://from-file:5432/loam\"\n"
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)
		Expect(err).NotTo(HaveOccurred())

		os.Setenv("LOAM_DATABASE_URL", "postgres://from-env:5432/loam")
		defer os.Unsetenv("LOAM_DATABASE_URL")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.Load(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Database.URL).To(Equal("postgres://from-env:5432/loam"))
	})

	It("rejects malformed config files", func() {
		err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("version = = 1"), 0o600)
		Expect(err).NotTo(HaveOccurred())

		_, err = config.InitViper(tmpDir)
		Expect(err).To(HaveOccurred())
	})
})
