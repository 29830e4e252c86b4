package cmd

import (
	"log"
	"os"

	"studio-store/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envFilePath    = ".env"
	logOutputFlags = log.LstdFlags | log.Lshortfile
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "studiostore",
	Short:         "Stores studio projects and their images, and rebuilds them on load",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(envFilePath); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	},
}

func Execute() {
	log.SetOutput(os.Stderr)
	log.SetFlags(logOutputFlags)

	if err := rootCmd.Execute(); err != nil {
		log.Printf("Command failed: %v", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log.Println("Configuration loaded successfully")
	return cfg, nil
}
