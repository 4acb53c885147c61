/*
Package cmd implements the command-line interface for the engram entity
store. It provides commands for serving the store over HTTP and MCP,
browsing it in a terminal UI, and reconciling multi-agent writes.
*/
package cmd

import (
	"bytes"
	"embed"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/engram/pkg/config"
	"github.com/theapemachine/engram/pkg/errors"
	"github.com/theapemachine/engram/pkg/stores"
	"github.com/theapemachine/engram/pkg/stores/gitrefs"
	"github.com/theapemachine/engram/pkg/stores/memstore"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the service,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

/*
rootCmd represents the base command when called without any subcommands
*/
var (
	projectName = "engram"
	cfgFile     string
	agentFlag   string

	rootCmd = &cobra.Command{
		Use:   "engram",
		Short: "A persistent entity database for multi-agent workflows",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the engram CLI. It initializes the root
command and executes it.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)

	rootCmd.PersistentFlags().StringVar(
		&agentFlag,
		"agent",
		"",
		"agent identity to act as (overrides workspace.default_agent)",
	)
}

/*
initConfig writes the default config file to the user's home directory if
it doesn't exist, then reads the configuration back through viper. A
workspace-local file under .engram/ wins over the home directory one, and
ENGRAM_* environment variables (optionally from a local .env) override
both.
*/
func initConfig() {
	_ = godotenv.Load()

	if err := writeConfig(); err != nil {
		log.Fatal("could not write default config", "error", err)
	}

	viper.SetConfigName(strings.TrimSuffix(cfgFile, filepath.Ext(cfgFile)))
	viper.SetConfigType("yml")
	viper.AddConfigPath(config.DefaultBasePath)
	home, _ := os.UserHomeDir()
	viper.AddConfigPath(home + "/." + projectName)

	viper.SetEnvPrefix("ENGRAM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("could not read config", "error", err)
	}
}

/*
writeConfig is a function that writes the default config file to the user's
home directory.
*/
func writeConfig() (err error) {
	var (
		home, _ = os.UserHomeDir()
		fh      fs.File
		buf     bytes.Buffer
	)

	// Create the config directory once before processing files
	configDir := home + "/." + projectName
	if !CheckFileExists(configDir) {
		if err = os.MkdirAll(configDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	for _, file := range []string{cfgFile} {
		fullPath := configDir + "/" + file

		if CheckFileExists(fullPath) {
			continue
		}

		if fh, err = embedded.Open("cfg/" + file); err != nil {
			return fmt.Errorf("failed to open embedded config file: %w", err)
		}

		if _, err = io.Copy(&buf, fh); err != nil {
			fh.Close()
			return fmt.Errorf("failed to read embedded config file: %w", err)
		}

		if err = os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			fh.Close()
			return fmt.Errorf("failed to write config file: %w", err)
		}

		log.Info("wrote config file", "path", fullPath)
		buf.Reset()
		fh.Close()
	}

	return nil
}

func CheckFileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !stderrors.Is(err, os.ErrNotExist)
}

// loadConfig decodes and validates the active configuration tree.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// actingAgent resolves the identity storage operations run as.
func actingAgent(cfg *config.Config) string {
	if agentFlag != "" {
		return agentFlag
	}

	return cfg.Workspace.DefaultAgent
}

/*
openStorage opens the backend the configuration selects, with the acting
agent as the writer identity.
*/
func openStorage(cfg *config.Config) (stores.Storage, error) {
	agent := actingAgent(cfg)
	if agent == "" {
		return nil, errors.NewError(errors.ErrMissingAgent{})
	}

	switch cfg.Storage.Type {
	case config.StorageMemory:
		return memstore.NewStore(agent), nil
	case config.StorageGit:
		options := []gitrefs.Option{}
		if cfg.Storage.Namespace != "" {
			options = append(options, gitrefs.WithNamespace(cfg.Storage.Namespace))
		}
		return gitrefs.Open(cfg.Storage.BasePath, agent, options...)
	}

	return nil, errors.ErrValidation.WithMessagef(
		"unknown storage type: %s", cfg.Storage.Type,
	)
}

/*
longRoot contains the detailed help text for the root command.
*/
var longRoot = `
engram is a persistent entity database for multi-agent development
workflows, backed by a git object store. Agents write tasks, knowledge,
and relationships as versioned records; engram keeps every value ever
written and reconciles concurrent writes on demand.
`
