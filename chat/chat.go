package chat

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bisacoding/bisacoding/internal/cli"
	"github.com/bisacoding/bisacoding/internal/configuration"
	"github.com/bisacoding/bisacoding/internal/file"
	"github.com/bisacoding/bisacoding/internal/llm"
	"github.com/bisacoding/bisacoding/internal/mentor"
	"github.com/bisacoding/bisacoding/store"
)

// NewCmd instantiates and returns the chat command.
func NewCmd(mentorClient *mentor.Client, config *configuration.Config, s *store.Store) *cobra.Command {
	var opts struct {
		Attachment *file.AttachmentOpts
		ProjectID  string
	}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the Bisa Coding mentor",
		Long:  "Open a project and chat with the mentor. Replies stream in as they are produced.",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			// The attachment rides on the first message sent this session.
			// Parse it before touching the store so a bad path does not
			// leave an orphan empty project behind.
			attachment, err := file.ParseAttachment(opts.Attachment.Path)
			if err != nil {
				cli.Error("%s\n", err)
				return
			}
			if attachment != nil {
				cli.Notice("attaching %s (%s) to your next message\n", attachment.Name, attachment.MimeType)
			}

			// Open or create the project.
			var project *store.Project
			if opts.ProjectID != "" {
				project = s.Get(opts.ProjectID)
				if project == nil {
					cli.Error("no project with id %s\n", opts.ProjectID)
					return
				}
			} else {
				project = s.CreateProject()
			}

			// Headers.
			cli.Title("BISA CODING MENTOR [%s](%s)", config.Model, project.ID)

			// Print history.
			for _, message := range project.Messages {
				if message.Role == llm.UserRole {
					cli.UserInput("> %s\n", message.Content)
				}
				if message.Role == llm.ModelRole {
					cli.MentorOutput(message.Content + "\n")
				}
			}
			cli.Separator()

			ctx := context.Background()
			for {
				// Query user for prompt.
				text, err := cli.PromptUser()
				cobra.CheckErr(err)
				text = strings.TrimSpace(text)
				if text == "" && attachment == nil {
					continue
				}

				// Fold the attachment into the outgoing message. A text
				// transcript becomes part of the stored message, exactly as
				// it is sent; an image stays a side channel of this call.
				var imageAttachment *file.Attachment
				if attachment != nil {
					if attachment.IsText() {
						text += attachment.Transcript()
					} else {
						imageAttachment = attachment
						if text == "" {
							text = "Analyze this image: " + attachment.Name
						}
					}
					attachment = nil
				}

				userMessage := &store.Message{
					Role:      llm.UserRole,
					Content:   text,
					Timestamp: time.Now().UnixMilli(),
				}
				messages := append(project.Messages, userMessage)
				s.UpdateMessages(project.ID, messages)

				// Quick feedback so user knows the query has been submitted.
				cli.MentorOutput("Mentor: ")

				var fullText string
				var sources []*llm.Source
				mentorClient.StreamReply(ctx, messages,
					func(chunk string) { cli.MentorOutput(chunk) },
					func(text string, s []*llm.Source) { fullText, sources = text, s },
					imageAttachment,
				)
				cli.MentorOutput("\n")
				for _, source := range sources {
					cli.FileInfo("source: %s (%s)\n", source.Title, source.URI)
				}

				modelMessage := &store.Message{
					Role:      llm.ModelRole,
					Content:   fullText,
					Timestamp: time.Now().UnixMilli(),
					Sources:   sources,
				}
				s.UpdateMessages(project.ID, append(messages, modelMessage))
				project = s.Get(project.ID)
			}
		},
	}

	opts.Attachment = file.GetAttachmentOpts(cmd)
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "resume an existing project by id")

	cmd.AddCommand(newListCmd(s))
	cmd.AddCommand(newDeleteCmd(s))
	return cmd
}
