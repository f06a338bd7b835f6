package ledger_test

import (
	"fmt"
	"testing"

	"anipipe/internal/ledger"
)

func TestPlanGroupsBySeriesAndChunks(t *testing.T) {
	var videos []string
	for i := 1; i <= 7; i++ {
		videos = append(videos, fmt.Sprintf("pack/show_a/ep%d.mp4", i))
	}
	videos = append(videos, "pack/show_b/ep1.mp4")

	batches := ledger.Plan("pack", videos, 3)
	if len(batches) != 4 {
		t.Fatalf("expected 4 batches, got %d: %+v", len(batches), batches)
	}

	first := batches[0]
	if first.Name != "pack_show_a_part01of03" {
		t.Fatalf("unexpected batch name %s", first.Name)
	}
	if first.Series != "show_a" || first.Total != 3 || len(first.Videos) != 3 {
		t.Fatalf("unexpected first batch: %+v", first)
	}
	last := batches[2]
	if last.Index != 3 || len(last.Videos) != 1 {
		t.Fatalf("unexpected last show_a batch: %+v", last)
	}
	if batches[3].Series != "show_b" || batches[3].Total != 1 {
		t.Fatalf("unexpected show_b batch: %+v", batches[3])
	}
}

func TestBatchNameCarriesPartTotal(t *testing.T) {
	videos := []string{
		"folder/show/ep1.mp4",
		"folder/show/ep2.mp4",
		"folder/show/ep3.mp4",
	}
	batches := ledger.Plan("folder", videos, 2)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].Name != "folder_show_part01of02" || batches[1].Name != "folder_show_part02of02" {
		t.Fatalf("unexpected names: %s, %s", batches[0].Name, batches[1].Name)
	}
}

func TestPlanNaturalOrder(t *testing.T) {
	videos := []string{
		"pack/show/ep10.mp4",
		"pack/show/ep2.mp4",
		"pack/show/ep1.mp4",
	}
	batches := ledger.Plan("pack", videos, 30)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	got := batches[0].Videos
	want := []string{"pack/show/ep1.mp4", "pack/show/ep2.mp4", "pack/show/ep10.mp4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v", i, got)
		}
	}
}

func TestPlanFlatLayoutUsesFolderAsSeries(t *testing.T) {
	batches := ledger.Plan("show", []string{"show/ep1.mp4", "show/ep2.mp4"}, 30)
	if len(batches) != 1 || batches[0].Series != "show" {
		t.Fatalf("unexpected plan: %+v", batches)
	}
	if batches[0].Name != "show_show_part01of01" {
		t.Fatalf("unexpected name %s", batches[0].Name)
	}
}

func TestPlanSanitizesNames(t *testing.T) {
	batches := ledger.Plan("my pack", []string{"my pack/show: two/ep1.mp4"}, 30)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if batches[0].Name != "my_pack_show-_two_part01of01" {
		t.Fatalf("unexpected sanitized name %q", batches[0].Name)
	}
}

func TestLedgerPersistence(t *testing.T) {
	dir := t.TempDir()
	l, err := ledger.NewLedger(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if l.IsBatchDone("pack_show_part01of01") {
		t.Fatal("fresh ledger should be empty")
	}
	if err := l.MarkBatchDone("pack_show_part01of01"); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkSeriesDone("show"); err != nil {
		t.Fatal(err)
	}

	reloaded, err := ledger.NewLedger(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.IsBatchDone("pack_show_part01of01") {
		t.Fatal("batch progress lost across reload")
	}
	if !reloaded.IsSeriesDone("show") {
		t.Fatal("series progress lost across reload")
	}
	batches, series := reloaded.Counts()
	if batches != 1 || series != 1 {
		t.Fatalf("unexpected counts: %d %d", batches, series)
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := ledger.DisplayTitle("dark_theater_season_1"); got != "Dark Theater Season 1" {
		t.Fatalf("DisplayTitle = %q", got)
	}
}
