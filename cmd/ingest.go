package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okulai/okulai/internal/app"
	"github.com/okulai/okulai/internal/config"
	"github.com/okulai/okulai/internal/knowledge"
	"github.com/okulai/okulai/internal/log"
)

var ingestDir string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Müfredat dosyalarını yükle",
	Long: `Verilen dizindeki müfredat JSON dosyalarını okur, parçalara böler
ve müfredat koleksiyonuna gömer. Aynı içerik tekrar yüklendiğinde
yinelenen kayıt oluşmaz.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "data/curriculum", "müfredat JSON dizini")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := log.New(log.Config{})

	entries, err := os.ReadDir(ingestDir)
	if err != nil {
		return fmt.Errorf("reading curriculum dir: %w", err)
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

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(ingestDir, entry.Name())

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		chunks, err := knowledge.ParseCurriculum(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		if err := a.Knowledge.Add(ctx, chunks); err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		logger.Info("ingested curriculum file", "file", entry.Name(), "chunks", len(chunks))
		total += len(chunks)
	}

	fmt.Printf("%d parça yüklendi\n", total)
	return nil
}
