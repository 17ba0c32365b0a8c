package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/meko-christian/mail-listener/internal/config"
	"github.com/meko-christian/mail-listener/internal/responder"
)

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Send a mail with optional HTML, inline images and attachments",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if errs := config.NewConfigValidator().ValidateSMTP(cfg); len(errs) > 0 {
			return fmt.Errorf("invalid SMTP configuration: %v", errs)
		}

		var reply responder.Reply
		reply.To, _ = cmd.Flags().GetString("to")
		reply.Subject, _ = cmd.Flags().GetString("subject")
		reply.Text, _ = cmd.Flags().GetString("text")
		reply.HTML, _ = cmd.Flags().GetString("html")
		reply.Images, _ = cmd.Flags().GetStringSlice("image")
		reply.Attachments, _ = cmd.Flags().GetStringSlice("attach")

		r := responder.New(cfg.SMTPConfig())
		if err := r.Login(); err != nil {
			return err
		}
		defer func() {
			if err := r.Logout(); err != nil {
				slog.Warn("SMTP logout failed", "error", err)
			}
		}()

		if _, err := r.SendRich(reply); err != nil {
			return err
		}

		fmt.Printf("Reply sent to %s\n", reply.To)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replyCmd)

	replyCmd.Flags().String("to", "", "Recipient address")
	replyCmd.Flags().String("subject", "", "Subject line")
	replyCmd.Flags().String("text", "", "Plain text body")
	replyCmd.Flags().String("html", "", "HTML body (inline images are only sent with one)")
	replyCmd.Flags().StringSlice("image", nil, "Inline image, referenced as cid:image0, cid:image1, ...")
	replyCmd.Flags().StringSlice("attach", nil, "File to attach")
	_ = replyCmd.MarkFlagRequired("to")
	_ = replyCmd.MarkFlagRequired("subject")
}
