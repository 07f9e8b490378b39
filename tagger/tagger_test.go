package tagger

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/happyhackingspace/lextag/crf"
	"github.com/happyhackingspace/lextag/metric"
)

func TestSequenceFeatures(t *testing.T) {
	feats := SequenceFeatures([]string{"北", "京", "好"})
	if len(feats) != 3 {
		t.Fatalf("expected 3 feature dicts, got %d", len(feats))
	}

	// Middle position sees both neighbors.
	if feats[1]["w[0]=京"] != 1 {
		t.Error("expected w[0] unigram on middle position")
	}
	if feats[1]["w[-1]=北"] != 1 || feats[1]["w[+1]=好"] != 1 {
		t.Error("expected neighbor unigrams on middle position")
	}
	if feats[1]["w[-1,0]=北|京"] != 1 || feats[1]["w[0,+1]=京|好"] != 1 {
		t.Error("expected adjacent bigrams on middle position")
	}
	if feats[1]["type=letter"] != 1 {
		t.Errorf("expected type=letter, got %v", feats[1])
	}

	// Edges fall back to sentinels.
	if feats[0]["w[-1]=<s>"] != 1 || feats[0]["w[-2]=<s>"] != 1 {
		t.Error("expected begin sentinels on first position")
	}
	if feats[2]["w[+1]=</s>"] != 1 {
		t.Error("expected end sentinel on last position")
	}

	// First and last markers, bias everywhere.
	if feats[0]["is-first"] != 1 {
		t.Error("expected is-first on first position")
	}
	if _, ok := feats[0]["is-last"]; ok {
		t.Error("first position should not have is-last")
	}
	if feats[2]["is-last"] != 1 {
		t.Error("expected is-last on last position")
	}
	for i := range feats {
		if feats[i]["bias"] != 1 {
			t.Errorf("position %d missing bias", i)
		}
	}
}

func trainToyTagger(t *testing.T) *Model {
	t.Helper()

	sequences := []Sequence{
		{Tokens: []string{"北", "京", "好"}, Tags: []string{"LOC-B", "LOC-I", "O"}},
		{Tokens: []string{"去", "上", "海"}, Tags: []string{"O", "LOC-B", "LOC-I"}},
		{Tokens: []string{"好", "的"}, Tags: []string{"O", "O"}},
		{Tokens: []string{"北", "京"}, Tags: []string{"LOC-B", "LOC-I"}},
	}

	config := crf.DefaultTrainerConfig()
	config.Labels = []string{"O", "LOC-B", "LOC-I"}
	config.MaxIterations = 50

	model, err := Train(sequences, config, metric.BIO(true))
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	return model
}

func TestTrainAndTag(t *testing.T) {
	model := trainToyTagger(t)

	if got := model.Labels(); !reflect.DeepEqual(got, []string{"O", "LOC-B", "LOC-I"}) {
		t.Errorf("Labels() = %v", got)
	}

	tokens := []string{"北", "京", "好"}
	tags := model.Tag(tokens)
	if len(tags) != len(tokens) {
		t.Fatalf("expected %d tags, got %d", len(tokens), len(tags))
	}
	known := map[string]bool{"O": true, "LOC-B": true, "LOC-I": true}
	for i, tag := range tags {
		if !known[tag] {
			t.Errorf("position %d: unknown tag %q", i, tag)
		}
	}
	t.Logf("predicted tags: %v", tags)

	chunks, err := model.Chunks(tokens)
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	t.Logf("predicted chunks: %v", chunks)

	proba := model.TagProba(tokens)
	if len(proba) != len(tokens) {
		t.Fatalf("expected %d marginal dicts, got %d", len(tokens), len(proba))
	}
	for i, dict := range proba {
		sum := 0.0
		for _, p := range dict {
			sum += p
		}
		if sum < 0.99 || sum > 1.01 {
			t.Errorf("position %d: marginals sum to %v", i, sum)
		}
	}
}

func TestTagEmpty(t *testing.T) {
	model := trainToyTagger(t)
	if tags := model.Tag(nil); tags != nil {
		t.Errorf("Tag(nil) = %v, want nil", tags)
	}
	if proba := model.TagProba(nil); proba != nil {
		t.Errorf("TagProba(nil) = %v, want nil", proba)
	}
}

func TestTrainRejectsMisalignedSequence(t *testing.T) {
	sequences := []Sequence{
		{Tokens: []string{"北", "京"}, Tags: []string{"LOC-B"}},
	}
	if _, err := Train(sequences, crf.DefaultTrainerConfig(), metric.BIO(true)); err == nil {
		t.Error("expected error for misaligned tokens and tags")
	}
}

func TestEmissionsShape(t *testing.T) {
	model := trainToyTagger(t)

	em, lengths, err := model.Emissions([][]string{
		{"北", "京", "好"},
		{"的"},
	})
	if err != nil {
		t.Fatalf("Emissions failed: %v", err)
	}
	if em.Batch != 2 || em.MaxLen != 3 || em.NumLabels != 3 {
		t.Errorf("shape = (%d, %d, %d), want (2, 3, 3)", em.Batch, em.MaxLen, em.NumLabels)
	}
	if !reflect.DeepEqual(lengths, []int{3, 1}) {
		t.Errorf("lengths = %v, want [3 1]", lengths)
	}

	if _, _, err := model.Emissions([][]string{{}}); err == nil {
		t.Error("expected error for empty sequence")
	}
}

func TestModelSaveLoad(t *testing.T) {
	model := trainToyTagger(t)
	path := filepath.Join(t.TempDir(), "tagger.json")

	if err := model.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !reflect.DeepEqual(loaded.Labels(), model.Labels()) {
		t.Errorf("loaded labels = %v, want %v", loaded.Labels(), model.Labels())
	}
	if loaded.Scheme != model.Scheme {
		t.Errorf("loaded scheme = %+v, want %+v", loaded.Scheme, model.Scheme)
	}

	tokens := []string{"去", "上", "海"}
	if got, want := loaded.Tag(tokens), model.Tag(tokens); !reflect.DeepEqual(got, want) {
		t.Errorf("loaded model tags %v, original tags %v", got, want)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed model file")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing model file")
	}
}
