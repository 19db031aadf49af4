package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/vehicle-assist/backend/internal/analysis/rules"
	"github.com/zhouzirui/vehicle-assist/backend/internal/bootstrap"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/issue"
	"github.com/zhouzirui/vehicle-assist/backend/internal/model/speech"
)

func replyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reply <message>",
		Short: "Show which canned reply the chat assistant picks for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			kind := rules.ClassifyReply(message)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", kind, rules.ReplyText(kind))
			return nil
		},
	}
}

func classifyCmd() *cobra.Command {
	var vehicleRef, mode string

	cmd := &cobra.Command{
		Use:   "classify <description>",
		Short: "Run the configured issue classifier over a description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Classifier.Mode = mode
			}

			vehicleModel, err := resolveVehicle(cfg, vehicleRef)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			classifier, err := bootstrap.Classifier(ctx, cfg.Classifier)
			if err != nil {
				return err
			}

			log.Printf("开始分类: mode=%s vehicle=%s", cfg.Classifier.Mode, vehicleModel)
			suggestion, err := classifier.Classify(ctx, strings.Join(args, " "), vehicleModel)
			if err != nil {
				return err
			}
			return printJSON(cmd, suggestion)
		},
	}
	cmd.Flags().StringVar(&vehicleRef, "vehicle", "nexon", "车型 id 或名称")
	cmd.Flags().StringVar(&mode, "mode", "", "覆盖 CLASSIFIER_MODE (mock, rules, llm)")
	return cmd
}

func transcribeCmd() *cobra.Command {
	var format, language string

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Send an audio file to the configured transcriber",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			audioPath := args[0]
			data, err := os.ReadFile(audioPath)
			if err != nil {
				return fmt.Errorf("打开音频文件失败: %w", err)
			}

			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
				if format == "" {
					format = cfg.Speech.AudioFormat
				}
			}
			if language == "" {
				language = cfg.Speech.ASRLanguage
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			transcriber, speechMode := bootstrap.Transcriber(cfg.Speech)
			sessionID := fmt.Sprintf("manual-%s", uuid.NewString())
			log.Printf("开始进行 ASR 测试: mode=%s session=%s format=%s language=%s", speechMode, sessionID, format, language)

			transcript, err := transcriber.Transcribe(ctx, speech.Audio{
				SessionID: sessionID,
				Data:      data,
				Format:    format,
				Language:  language,
			})
			if err != nil {
				return err
			}
			log.Printf("ASR 识别成功: confidence=%.2f duration=%dms", transcript.Confidence, transcript.Duration)
			return printJSON(cmd, transcript)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "音频格式，默认按扩展名推断")
	cmd.Flags().StringVar(&language, "lang", "", "语言代码，默认使用配置中的语言")
	return cmd
}

func submitCmd() *cobra.Command {
	var vehicleRef, tag string
	var withSuggestion bool

	cmd := &cobra.Command{
		Use:   "submit <description>",
		Short: "Compose an issue record and hand it to the configured submitter",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if tag != "" && !issue.IsCommonTag(tag) {
				return fmt.Errorf("unknown issue tag %q", tag)
			}

			vehicleModel, err := resolveVehicle(cfg, vehicleRef)
			if err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			draft := issue.Draft{Text: strings.Join(args, " "), Category: tag}

			var suggestion *issue.Suggestion
			if withSuggestion {
				classifier, err := bootstrap.Classifier(ctx, cfg.Classifier)
				if err != nil {
					return err
				}
				result, err := classifier.Classify(ctx, draft.Text, vehicleModel)
				if err != nil {
					return err
				}
				suggestion = &result
			}

			repo, closer, err := bootstrap.Repository(cfg.Issues)
			if err != nil {
				return err
			}
			defer closer.Close()

			record := issue.ComposeRecord(draft, suggestion, vehicleModel, time.Now().UTC())
			stored, err := bootstrap.Submitter(cfg.Issues, repo).Submit(ctx, record)
			if err != nil {
				return err
			}
			log.Printf("提交成功: id=%s", stored.ID)
			return printJSON(cmd, stored)
		},
	}
	cmd.Flags().StringVar(&vehicleRef, "vehicle", "nexon", "车型 id 或名称")
	cmd.Flags().StringVar(&tag, "tag", "", "快捷标签，例如 \"Oil leak\"")
	cmd.Flags().BoolVar(&withSuggestion, "classify", false, "提交前先运行分类器")
	return cmd
}
