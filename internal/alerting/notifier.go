package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"econindex/internal/anomaly"
)

const (
	// maxListed caps the findings rendered into one report.
	maxListed = 20
	// telegramLimit is the sendMessage text limit in characters.
	telegramLimit = 4096
)

// Notification 封装一次运行的异常报告。
type Notification struct {
	RunID         string
	At            time.Time
	Findings      []anomaly.Finding
	Absent        int
	AdditionalMsg string
}

// Empty 表示报告中没有需要推送的内容。
func (n Notification) Empty() bool {
	return len(n.Findings) == 0 && n.Absent == 0 && n.AdditionalMsg == ""
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// LogNotifier 仅将报告写入日志，未配置 Telegram 时使用。
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier 构造日志告警器。
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify 每个跳变输出一条 warn 日志。
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	if note.Empty() {
		return nil
	}
	for _, f := range note.Findings {
		n.logger.Warn().Str("run_id", note.RunID).
			Str("country", f.Country).
			Str("indicator", string(f.Indicator)).
			Int("from_year", f.FromYear).
			Int("to_year", f.ToYear).
			Str("ratio", f.Ratio.StringFixed(1)).
			Msg("series discontinuity")
	}
	if note.Absent > 0 || note.AdditionalMsg != "" {
		n.logger.Warn().Str("run_id", note.RunID).Int("absent", note.Absent).Msg(note.AdditionalMsg)
	}
	return nil
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 渲染报告，超长时按行拆分为多条消息依次发送。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	parts := splitMessage(renderMessage(note), telegramLimit)
	for i, text := range parts {
		if err := n.send(ctx, text); err != nil {
			return fmt.Errorf("telegram part %d/%d: %w", i+1, len(parts), err)
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Int("findings", len(note.Findings)).
		Int("messages", len(parts)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Description != "" {
			return fmt.Errorf("telegram 响应码异常: %d (%s)", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram 返回 ok=false: %s", result.Description)
	}
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[econindex anomaly report]\n")
	builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Jumps: %d, absent series: %d\n", len(note.Findings), note.Absent))
	for i, f := range note.Findings {
		if i == maxListed {
			builder.WriteString(fmt.Sprintf("... and %d more\n", len(note.Findings)-maxListed))
			break
		}
		builder.WriteString(f.String())
		builder.WriteString("\n")
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

// splitMessage 按行切分文本，单行超长时按字符硬切。
func splitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var parts []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, string(current))
			current = current[:0]
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		if len(current)+len(runes) > limit {
			flush()
		}
		for len(runes) > limit {
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		current = append(current, runes...)
	}
	flush()
	return parts
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
