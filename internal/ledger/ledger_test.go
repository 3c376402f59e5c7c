package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_RunLifecycle(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	run, err := l.StartRun(ctx, KindCrawl)
	require.NoError(t, err)

	require.NoError(t, run.RecordArtifact(ctx, Artifact{
		Index: 3, OriginalName: "23.xml", Path: "/d/xmls/Recibo Nomina 2024_4_23.xml",
		Class: "xml", Outcome: OutcomeRenamed, Date: "2024_4_23",
	}))
	require.NoError(t, run.RecordArtifact(ctx, Artifact{
		Index: 3, OriginalName: "23.pdf", Path: "/d/pdfs/23.pdf",
		Class: "pdf", Outcome: OutcomeUnresolved,
	}))
	require.NoError(t, run.Finish(ctx, "done", Stats{Processed: 1, Succeeded: 1, Files: 2}))

	artifacts, err := l.Artifacts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "23.xml", artifacts[0].OriginalName)
	assert.Equal(t, OutcomeUnresolved, artifacts[1].Outcome)

	runs, err := l.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, "done", runs[0].Status)
	assert.Equal(t, 2, runs[0].Stats.Files)
	require.NotNil(t, runs[0].FinishedAt)
	assert.False(t, runs[0].StartedAt.IsZero())
}

func TestLedger_Summary(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	empty, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Runs)
	assert.Nil(t, empty.LastRun)

	first, err := l.StartRun(ctx, KindCrawl)
	require.NoError(t, err)
	require.NoError(t, first.RecordArtifact(ctx, Artifact{Index: 0, OriginalName: "a.zip", Path: "/d/a.zip", Class: "other", Outcome: OutcomeSaved}))
	require.NoError(t, first.Finish(ctx, "done", Stats{}))

	second, err := l.StartRun(ctx, KindRename)
	require.NoError(t, err)
	for _, name := range []string{"1.xml", "2.xml"} {
		require.NoError(t, second.RecordArtifact(ctx, Artifact{Index: -1, OriginalName: name, Path: "/d/" + name, Class: "xml", Outcome: OutcomeDuplicate}))
	}

	s, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, 3, s.Artifacts)
	assert.Equal(t, 2, s.Outcomes[OutcomeDuplicate])
	assert.Equal(t, 1, s.Outcomes[OutcomeSaved])
	require.NotNil(t, s.LastRun)
	assert.Equal(t, second.ID, s.LastRun.ID)
	assert.Equal(t, "running", s.LastRun.Status)
	assert.Nil(t, s.LastRun.FinishedAt)
}

func TestLedger_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()

	l, err := Open(path)
	require.NoError(t, err)
	_, err = l.StartRun(ctx, KindCrawl)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	runs, err := l.RecentRuns(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
