package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/happyhackingspace/lextag"
	"github.com/happyhackingspace/lextag/internal/textutil"
	"github.com/spf13/cobra"
)

const modelURL = "https://huggingface.co/datasets/happyhackingspace/lextag/resolve/main/model.json"

// lineResult is the JSON output shape of the run command, one per input line.
type lineResult struct {
	Text  string        `json:"text"`
	Spans []lextag.Span `json:"spans"`
}

func (c *CLI) newRunCommand() *cobra.Command {
	var modelPath string
	var asJSON bool
	var proba bool

	cmd := &cobra.Command{
		Use:   "run [text-or-file]",
		Short: "Tag text from an argument, a file, or stdin",
		Args:  cobra.MaximumNArgs(1),
		Example: `  # Tag a sentence directly
  lextag run 我去北京

  # Tag a file, one sentence per line
  lextag run sentences.txt

  # Pipe text from stdin
  cat sentences.txt | lextag run

  # Emit typed spans as JSON
  lextag run 我去北京 --json

  # Show per-character tag probabilities
  lextag run 我去北京 --proba

  # Use custom model file
  lextag run 我去北京 --model custom.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			var err error

			if len(args) == 0 {
				if isStdinTerminal() {
					return cmd.Help()
				}
				text, err = readFromStdin()
			} else {
				text, err = readInput(args[0])
			}
			if err != nil {
				return err
			}

			start := time.Now()
			tg, err := loadOrDownloadModel(modelPath)
			if err != nil {
				return err
			}
			slog.Debug("Model loaded", "duration", time.Since(start))

			lines := nonEmptyLines(text)
			if len(lines) == 0 {
				fmt.Println("No text to tag.")
				return nil
			}

			start = time.Now()
			defer func() {
				slog.Debug("Tagging completed", "lines", len(lines), "duration", time.Since(start))
			}()
			switch {
			case proba:
				return printProba(tg, lines)
			case asJSON:
				return printSpansJSON(tg, lines)
			default:
				return printTagged(tg, lines)
			}
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to model file (default: auto-detect or download)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit typed spans as JSON")
	cmd.Flags().BoolVar(&proba, "proba", false, "Show per-character tag probabilities")
	return cmd
}

// printTagged writes character/tag pairs, one input line per output line.
func printTagged(tg *lextag.Tagger, lines []string) error {
	for _, line := range lines {
		tokens := textutil.Chars(line)
		tags, err := tg.Tag(tokens)
		if err != nil {
			return err
		}
		pairs := make([]string, len(tokens))
		for i, token := range tokens {
			pairs[i] = token + "/" + tags[i]
		}
		fmt.Println(strings.Join(pairs, " "))
	}
	return nil
}

func printSpansJSON(tg *lextag.Tagger, lines []string) error {
	results := make([]lineResult, len(lines))
	for i, line := range lines {
		spans, err := tg.TagText(line)
		if err != nil {
			return err
		}
		results[i] = lineResult{Text: line, Spans: spans}
	}
	output, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(output))
	return nil
}

func printProba(tg *lextag.Tagger, lines []string) error {
	type lineProba struct {
		Text  string               `json:"text"`
		Proba []map[string]float64 `json:"proba"`
	}
	results := make([]lineProba, len(lines))
	for i, line := range lines {
		proba, err := tg.TagProba(textutil.Chars(line))
		if err != nil {
			return err
		}
		results[i] = lineProba{Text: line, Proba: proba}
	}
	output, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(output))
	return nil
}

func isStdinTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// readInput treats the argument as a file path when one exists, and as
// literal text otherwise.
func readInput(target string) (string, error) {
	if fi, err := os.Stat(target); err == nil && !fi.IsDir() {
		slog.Debug("Reading file", "path", target)
		data, err := os.ReadFile(target)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return string(data), nil
	}
	return target, nil
}

func readFromStdin() (string, error) {
	slog.Debug("Reading from stdin")
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	content := strings.TrimSpace(string(body))
	if content == "" {
		return "", fmt.Errorf("stdin is empty")
	}
	return content, nil
}

func nonEmptyLines(text string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func loadOrDownloadModel(modelPath string) (*lextag.Tagger, error) {
	if modelPath != "" {
		slog.Debug("Loading custom model", "path", modelPath)
		return lextag.Load(modelPath)
	}

	tg, err := lextag.New()
	if err == nil {
		return tg, nil
	}

	dest := filepath.Join(lextag.ModelDir(), "model.json")
	if _, statErr := os.Stat(dest); statErr == nil {
		return lextag.Load(dest)
	}
	slog.Info("Model not found, downloading", "url", modelURL, "dest", dest)

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}

	resp, err := http.Get(modelURL)
	if err != nil {
		return nil, fmt.Errorf("download model: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download model: HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create model file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return nil, fmt.Errorf("download model: %w", err)
	}
	_ = f.Close()

	slog.Info("Model downloaded", "size", fmt.Sprintf("%.1fMB", float64(written)/1024/1024))
	return lextag.Load(dest)
}
