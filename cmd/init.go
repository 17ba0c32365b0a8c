package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meko-christian/mail-listener/internal/config"
	"github.com/meko-christian/mail-listener/internal/credential"
	"github.com/meko-christian/mail-listener/internal/web"
)

const configFile = "config.yaml"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively generate a config.yaml file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		useKeyring, _ := cmd.Flags().GetBool("keyring")

		if _, err := os.Stat(configFile); err == nil {
			if !force {
				fmt.Printf("config.yaml already exists. Use --force to overwrite.\n")
				return nil
			}
			backupPath, err := config.NewConfigBackup(configFile).CreateBackup("init --force")
			if err != nil {
				return fmt.Errorf("failed to back up existing config: %w", err)
			}
			fmt.Printf("Existing config.yaml saved to %s\n", backupPath)
		}

		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Let's set up your config.yaml!")

		fmt.Println("\n--- IMAP ---")
		imapServer := prompt(reader, "IMAP server (e.g. imap.gmail.com): ")
		imapPort := promptDefault(reader, "IMAP port", "993")
		imapSecurity := promptDefault(reader, "IMAP security (ssl/starttls/none)", "ssl")
		imapUser := prompt(reader, "IMAP username: ")
		imapPass := prompt(reader, "IMAP password: ")
		imapFolder := promptDefault(reader, "Folder to watch", "INBOX")

		fmt.Println("\n--- LISTENER ---")
		attachmentDir := promptDefault(reader, "Attachment directory", ".")
		timeout := promptDefault(reader, "Timeout (minutes, or HH:MM)", "30")
		move := prompt(reader, "Move processed mails to folder (empty to keep): ")

		fmt.Println("\n--- PROCESSOR ---")
		kind := promptDefault(reader, "Processor (text/json/sqlite/reply/none)", config.KindText)

		var smtpServer, smtpPort, smtpSecurity, smtpUser, smtpPass, replyBody string
		if kind == config.KindReply {
			fmt.Println("\n--- SMTP ---")
			smtpServer = prompt(reader, "SMTP server (e.g. smtp.gmail.com): ")
			smtpPort = promptDefault(reader, "SMTP port", "465")
			smtpSecurity = promptDefault(reader, "SMTP security (ssl/starttls)", "ssl")
			smtpUser = promptDefault(reader, "SMTP username", imapUser)
			smtpPass = prompt(reader, "SMTP password: ")
			replyBody = prompt(reader, "Reply text ({subject} and {from} are replaced): ")
		}

		fmt.Println("\n--- STATUS DASHBOARD ---")
		webAddr := prompt(reader, "Dashboard address (e.g. 127.0.0.1:8080, empty to disable): ")
		var webHash string
		if webAddr != "" {
			webPass := prompt(reader, "Dashboard password for user admin: ")
			hash, err := web.HashPassword(webPass)
			if err != nil {
				return fmt.Errorf("failed to hash dashboard password: %w", err)
			}
			webHash = hash
		}

		if useKeyring {
			store, err := credential.Open()
			if err != nil {
				return err
			}
			if err := store.Set(credential.IMAPKey(imapUser), imapPass); err != nil {
				return err
			}
			imapPass = ""
			if smtpUser != "" && smtpPass != "" {
				if err := store.Set(credential.SMTPKey(smtpUser), smtpPass); err != nil {
					return err
				}
				smtpPass = ""
			}
			fmt.Println("Passwords stored in the system keyring.")
		}

		var b strings.Builder
		fmt.Fprintf(&b, "imap:\n")
		yamlField(&b, "server", imapServer)
		fmt.Fprintf(&b, "  port: %s\n", imapPort)
		yamlField(&b, "security", imapSecurity)
		yamlField(&b, "username", imapUser)
		yamlField(&b, "password", imapPass)
		yamlField(&b, "folder", imapFolder)

		fmt.Fprintf(&b, "\nlistener:\n")
		yamlField(&b, "attachment_dir", attachmentDir)
		fmt.Fprintf(&b, "  timeout: %s\n", yamlTimeout(timeout))
		yamlField(&b, "move", move)

		fmt.Fprintf(&b, "\nprocessor:\n")
		yamlField(&b, "kind", kind)
		yamlField(&b, "reply_body", replyBody)

		if smtpServer != "" {
			fmt.Fprintf(&b, "\nsmtp:\n")
			yamlField(&b, "server", smtpServer)
			fmt.Fprintf(&b, "  port: %s\n", smtpPort)
			yamlField(&b, "security", smtpSecurity)
			yamlField(&b, "username", smtpUser)
			yamlField(&b, "password", smtpPass)
		}

		if webAddr != "" {
			fmt.Fprintf(&b, "\nweb:\n")
			yamlField(&b, "addr", webAddr)
			yamlField(&b, "username", "admin")
			yamlField(&b, "password_hash", webHash)
		}

		if err := os.WriteFile(configFile, []byte(b.String()), 0o600); err != nil {
			return fmt.Errorf("failed to write config.yaml: %w", err)
		}

		fmt.Println("\n✅ config.yaml created successfully.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("force", false, "Overwrite an existing config.yaml after backing it up")
	initCmd.Flags().Bool("keyring", false, "Store passwords in the system keyring instead of config.yaml")
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	text, _ := r.ReadString('\n')
	return strings.TrimSpace(text)
}

func promptDefault(r *bufio.Reader, label, def string) string {
	if v := prompt(r, fmt.Sprintf("%s [%s]: ", label, def)); v != "" {
		return v
	}
	return def
}

// yamlField writes a quoted string key, skipping empty values.
func yamlField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "  %s: %q\n", key, value)
}

// yamlTimeout keeps minute counts numeric and quotes times of day.
func yamlTimeout(v string) string {
	if strings.Contains(v, ":") {
		return fmt.Sprintf("%q", v)
	}
	return v
}
