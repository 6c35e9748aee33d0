package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "okulai",
	Short: "OkulAI - YKS öğrenci asistanı",
	Long: `OkulAI, YKS'ye hazırlanan öğrenciler için müfredat tabanlı bir
yapay zeka asistanıdır. Soruları ders uzmanlarına yönlendirir, müfredat ve
geçmiş konuşmalardan kaynak göstererek cevaplar.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
