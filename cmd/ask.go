package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okulai/okulai/internal/app"
	"github.com/okulai/okulai/internal/config"
	"github.com/okulai/okulai/internal/log"
)

var (
	askStudentID string
	askSessionID string
)

var askCmd = &cobra.Command{
	Use:   "ask [soru]",
	Short: "Bir soru sor",
	Long: `Tek bir soruyu uzman hattından geçirir ve cevabı kaynaklarıyla
birlikte yazar. --session verilmezse yeni bir oturum açılır.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askStudentID, "student", "", "öğrenci kimliği (zorunlu)")
	askCmd.Flags().StringVar(&askSessionID, "session", "", "oturum kimliği (boşsa yeni oturum)")
	_ = askCmd.MarkFlagRequired("student")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := log.New(log.Config{})

	sessionID := uuid.New()
	if askSessionID != "" {
		sessionID, err = uuid.Parse(askSessionID)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", askSessionID, err)
		}
	}

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

	resp, err := a.Orchestrator.HandleQuery(ctx, sessionID, askStudentID, strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Printf("\nKaynaklar: %s\n", strings.Join(resp.Citations, ", "))
	}
	if len(resp.ExpertsUsed) > 0 {
		fmt.Printf("Uzmanlar: %s\n", strings.Join(resp.ExpertsUsed, ", "))
	}
	if resp.Degraded {
		fmt.Printf("(kısıtlı yanıt: %s)\n", resp.Reason)
	}
	fmt.Printf("Oturum: %s\n", sessionID)
	return nil
}
