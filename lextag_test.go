package lextag

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestCorpus lays out a small dataset folder: dictionaries plus train
// and test splits in the two-column TSV format.
func writeTestCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"word.dic": "PAD\nOOV\n我\n去\n北\n京\n上\n海\n好\n的\n",
		"tag.dic":  "O\nLOC-B\nLOC-I\n",
		"q2b.dic":  "Ａ\tA\n",
		"train.tsv": "text_a\tlabel\n" +
			row([]string{"我", "去", "北", "京"}, []string{"O", "O", "LOC-B", "LOC-I"}) +
			row([]string{"去", "上", "海"}, []string{"O", "LOC-B", "LOC-I"}) +
			row([]string{"好", "的"}, []string{"O", "O"}) +
			row([]string{"北", "京", "好"}, []string{"LOC-B", "LOC-I", "O"}),
		"test.tsv": "text_a\tlabel\n" +
			row([]string{"我", "去", "北", "京"}, []string{"O", "O", "LOC-B", "LOC-I"}) +
			row([]string{"好", "的"}, []string{"O", "O"}),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func row(tokens, tags []string) string {
	return strings.Join(tokens, "\x02") + "\t" + strings.Join(tags, "\x02") + "\n"
}

func TestTrainAndTagText(t *testing.T) {
	dir := writeTestCorpus(t)

	tg, err := Train(dir, nil)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	if got := tg.Labels(); len(got) != 3 || got[0] != "O" {
		t.Errorf("Labels() = %v, want tag.dic order starting with O", got)
	}

	tags, err := tg.Tag([]string{"我", "去", "北", "京"})
	if err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	if len(tags) != 4 {
		t.Fatalf("expected 4 tags, got %d", len(tags))
	}
	t.Logf("predicted tags: %v", tags)

	spans, err := tg.TagText("我去北京")
	if err != nil {
		t.Fatalf("TagText failed: %v", err)
	}
	for _, s := range spans {
		if s.Start < 0 || s.End > 4 || s.Start >= s.End {
			t.Errorf("span %+v out of range", s)
		}
		if s.Type != "LOC" {
			t.Errorf("span type = %q, want LOC", s.Type)
		}
		if want := string([]rune("我去北京")[s.Start:s.End]); s.Text != want {
			t.Errorf("span text = %q, want %q", s.Text, want)
		}
	}
	t.Logf("predicted spans: %+v", spans)

	empty, err := tg.TagText("")
	if err != nil {
		t.Fatalf("TagText on empty text failed: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("TagText(\"\") = %v, want empty non-nil slice", empty)
	}
}

func TestTrainSubsample(t *testing.T) {
	dir := writeTestCorpus(t)

	config := DefaultTrainConfig()
	config.MaxExamples = 2
	config.Seed = 7
	config.Iterations = 20

	tg, err := Train(dir, config)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if tg.Labels() == nil {
		t.Error("expected trained labels")
	}
}

func TestEvaluate(t *testing.T) {
	dir := writeTestCorpus(t)

	tg, err := Train(dir, nil)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	// Batch size 1 forces several batches through the worker pool.
	result, err := Evaluate(tg, dir, &EvalConfig{BatchSize: 1, Workers: 2})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if result.Examples != 2 {
		t.Errorf("Examples = %d, want 2", result.Examples)
	}
	if result.TokenTotal != 6 {
		t.Errorf("TokenTotal = %d, want 6", result.TokenTotal)
	}
	if result.TokenCorrect < 0 || result.TokenCorrect > result.TokenTotal {
		t.Errorf("TokenCorrect = %d out of range", result.TokenCorrect)
	}
	if result.Chunks.Gold != 1 {
		t.Errorf("gold chunks = %d, want 1", result.Chunks.Gold)
	}
	if result.Chunks.Correct > result.Chunks.Gold || result.Chunks.Correct > result.Chunks.Inferred {
		t.Errorf("correct chunks %d exceed gold %d or inferred %d",
			result.Chunks.Correct, result.Chunks.Gold, result.Chunks.Inferred)
	}
	if result.F1 < 0 || result.F1 > 1 {
		t.Errorf("F1 = %v out of range", result.F1)
	}
	if result.AvgLoss < -1e-6 {
		t.Errorf("AvgLoss = %v, want non-negative", result.AvgLoss)
	}
	t.Logf("precision=%.3f recall=%.3f f1=%.3f token-acc=%.3f avg-loss=%.4f",
		result.Precision, result.Recall, result.F1, result.TokenAccuracy, result.AvgLoss)
}

func TestEvaluateLabelMismatch(t *testing.T) {
	dir := writeTestCorpus(t)
	tg, err := Train(dir, nil)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	other := t.TempDir()
	files := map[string]string{
		"word.dic": "PAD\nOOV\n好\n",
		"tag.dic":  "O\nORG-B\nORG-I\n",
		"test.tsv": "text_a\tlabel\n" + row([]string{"好"}, []string{"O"}),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(other, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := Evaluate(tg, other, nil); err == nil {
		t.Error("expected error for mismatched label vocabularies")
	}
}

func TestTrainMissingData(t *testing.T) {
	if _, err := Train(t.TempDir(), nil); err == nil {
		t.Error("expected error for empty data folder")
	}
}

func TestSaveLoad(t *testing.T) {
	dir := writeTestCorpus(t)
	tg, err := Train(dir, nil)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.json")
	if err := tg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want, _ := tg.Tag([]string{"北", "京"})
	got, err := loaded.Tag([]string{"北", "京"})
	if err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("loaded model tags %v, original tags %v", got, want)
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load("nonexistent.json")
	if err == nil {
		t.Error("expected error for nonexistent model")
	}
}

func TestTaggerNotInitialized(t *testing.T) {
	tg := &Tagger{}
	if _, err := tg.Tag([]string{"好"}); err == nil {
		t.Error("expected error for uninitialized tagger")
	}
	if _, err := tg.TagText("好"); err == nil {
		t.Error("expected error for uninitialized tagger")
	}
	if _, _, err := tg.Emissions([][]string{{"好"}}); err == nil {
		t.Error("expected error for uninitialized tagger")
	}
	if err := tg.Save("model.json"); err == nil {
		t.Error("expected error for uninitialized tagger")
	}
	if tg.Transitions() != nil || tg.Labels() != nil {
		t.Error("expected nil transitions and labels on uninitialized tagger")
	}
}

func TestNew(t *testing.T) {
	if _, err := os.Stat("model.json"); os.IsNotExist(err) {
		t.Skip("model.json not found, skipping")
	}
	tg, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if tg.Labels() == nil {
		t.Error("expected labels on loaded model")
	}
}
