package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bisacoding/bisacoding/chat"
	"github.com/bisacoding/bisacoding/internal/configuration"
	"github.com/bisacoding/bisacoding/internal/llm"
	"github.com/bisacoding/bisacoding/internal/mentor"
	"github.com/bisacoding/bisacoding/store"
	"github.com/bisacoding/bisacoding/webserver"
)

const configFilepath = "~/.config/bisacoding/config.json"

var rootCmd = &cobra.Command{
	Use:   "bisacoding",
	Short: "Bisa Coding: an AI mentor for code review and debugging",
}

func main() {
	// A local .env may carry the api key.
	godotenv.Load()

	config, err := configuration.Parse(configFilepath)
	cobra.CheckErr(err)

	s, err := store.New(config.StorePath)
	cobra.CheckErr(err)
	defer s.Close()

	client := llm.NewOpenAIClient(config.APIKey, config.APIHost)
	mentorClient := mentor.New(client, config)

	rootCmd.AddCommand(chat.NewCmd(mentorClient, config, s))
	rootCmd.AddCommand(webserver.NewServeCmd(mentorClient, s))
	rootCmd.Execute()
}
