package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okulai/okulai/internal/app"
	"github.com/okulai/okulai/internal/config"
	"github.com/okulai/okulai/internal/log"
)

var chatStudentID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Etkileşimli soru-cevap oturumu başlat",
	Long: `Tek bir oturum içinde art arda soru sorulabilen etkileşimli mod.
Çıkmak için "çıkış" yazın veya Ctrl-D ile kapatın.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatStudentID, "student", "", "öğrenci kimliği (zorunlu)")
	_ = chatCmd.MarkFlagRequired("student")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := log.New(log.Config{})

	ctx := cmd.Context()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()
	a.StartJanitor(ctx)

	sessionID := uuid.New()
	fmt.Printf("OkulAI hazır. Oturum: %s\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "çıkış" || query == "exit" {
			break
		}

		resp, err := a.Orchestrator.HandleQuery(ctx, sessionID, chatStudentID, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hata: %v\n", err)
			continue
		}

		fmt.Printf("\n%s\n", resp.Answer)
		if len(resp.Citations) > 0 {
			fmt.Printf("Kaynaklar: %s\n", strings.Join(resp.Citations, ", "))
		}
		fmt.Println()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println("Görüşmek üzere!")
	return nil
}
