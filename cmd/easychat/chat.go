package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/easychat-dev/easychat/internal/chat"
	"github.com/easychat-dev/easychat/internal/llm"
	"github.com/easychat-dev/easychat/internal/markdown"
	"github.com/easychat-dev/easychat/internal/pdftext"
)

func newChatCmd() *cobra.Command {
	var (
		attachPDF string
		asHTML    bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the model",
		Long: `Interactive chat. With a message argument, sends it and exits after
the response; without one, starts a read-eval loop. History is loaded
from and persisted to the local store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			driver, closeDriver, err := openDriver(cfg)
			if err != nil {
				return err
			}
			defer closeDriver()

			session := chat.New(cfg, model, llm.NewAnthropicClient(), driver, newCLILogger(), nil)
			defer session.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var attachment string
			if attachPDF != "" {
				text, err := pdftext.Extract(attachPDF)
				if err != nil {
					return fmt.Errorf("attach %s: %w", attachPDF, err)
				}
				attachment = "Document content:\n" + text + "\n\n"
				fmt.Fprintf(os.Stderr, "attached %s (%d characters)\n", attachPDF, len(text))
			}

			if len(args) > 0 {
				input := attachment + strings.Join(args, " ")
				return streamOnce(ctx, session, input, asHTML, os.Stdout)
			}

			fmt.Println("easychat (empty line or Ctrl-D to exit)")
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					break
				}
				input := attachment + line
				attachment = "" // only the first turn carries the document
				if err := streamOnce(ctx, session, input, asHTML, os.Stdout); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
				if ctx.Err() != nil {
					break
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&attachPDF, "attach-pdf", "", "Extract text from a PDF and prepend it to the first message")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Render the final response as HTML")
	return cmd
}

// streamOnce submits one turn and prints response fragments as they arrive.
// With asHTML the raw stream is not echoed; only the rendered final response
// is printed.
func streamOnce(ctx context.Context, session *chat.Session, input string, asHTML bool, w io.Writer) error {
	printed := 0
	for update := range session.Submit(ctx, input) {
		if update.Err != nil {
			return update.Err
		}
		if asHTML {
			if update.Final {
				fmt.Fprintln(w, markdown.Render(update.Text))
			}
			continue
		}
		// Updates carry the accumulated text; print only the new suffix.
		if len(update.Text) > printed {
			fmt.Fprint(w, update.Text[printed:])
			printed = len(update.Text)
		}
		if update.Final {
			fmt.Fprintln(w)
		}
	}
	return nil
}
