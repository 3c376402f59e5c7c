package payslip

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/payslip-crawler/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAmbiguousName(t *testing.T) {
	assert.True(t, IsAmbiguousName("14.pdf"))
	assert.True(t, IsAmbiguousName("23.XML"))
	assert.False(t, IsAmbiguousName("14.zip"))
	assert.False(t, IsAmbiguousName("Recibo Nomina 2024_4_14.pdf"))
	assert.False(t, IsAmbiguousName("14a.pdf"))
	assert.False(t, IsAmbiguousName(".pdf"))
	assert.True(t, IsAmbiguousName("14_item3.pdf"))
	assert.True(t, IsAmbiguousName("14_item3_2.xml"))
	assert.False(t, IsAmbiguousName("14_item.pdf"))
	assert.False(t, IsAmbiguousName("14_item3.zip"))
}

func TestAlternateName(t *testing.T) {
	assert.Equal(t, "14_item3.xml", AlternateName("14.xml", 3, 1))
	assert.Equal(t, "14_item3_2.xml", AlternateName("14.xml", 3, 2))
	assert.Equal(t, "constancia_item1.zip", AlternateName("constancia.zip", 1, 1))

	day, ok := DayStem(AlternateName("23.pdf", 12, 4))
	assert.True(t, ok)
	assert.Equal(t, "23", day)
	assert.Equal(t, ClassPDF, Classify(AlternateName("23.pdf", 12, 4)))
}

func TestClassifyAndLayout(t *testing.T) {
	l := Layout{Root: "/data"}

	assert.Equal(t, ClassXML, Classify("a.XML"))
	assert.Equal(t, ClassPDF, Classify("a.pdf"))
	assert.Equal(t, ClassOther, Classify("a.zip"))

	assert.Equal(t, filepath.Join("/data", "xmls", "23.xml"), l.PathFor("23.xml"))
	assert.Equal(t, filepath.Join("/data", "pdfs", "23.pdf"), l.PathFor("23.pdf"))
	assert.Equal(t, filepath.Join("/data", "notes.txt"), l.PathFor("notes.txt"))
}

func TestDateFromCanonicalName(t *testing.T) {
	d, ok := DateFromCanonicalName("Recibo Nomina 2024_4_23.xml")
	require.True(t, ok)
	assert.Equal(t, Date{"2024", "4", "23"}, d)

	_, ok = DateFromCanonicalName("23.xml")
	assert.False(t, ok)
	_, ok = DateFromCanonicalName("Recibo Nomina 2024_4.xml")
	assert.False(t, ok)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNamer_Rename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "23.xml")
	writeFile(t, src, "receipt")

	n := NewNamer(storage.NewDisk())
	res, err := n.Rename(src, Date{"2024", "4", "23"})
	require.NoError(t, err)

	assert.Equal(t, Renamed, res.Outcome)
	assert.Equal(t, filepath.Join(dir, "Recibo Nomina 2024_4_23.xml"), res.Path)
	assert.NoFileExists(t, src)
	assert.Equal(t, "receipt", readFile(t, res.Path))
}

func TestNamer_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Recibo Nomina 2024_4_23.pdf")
	writeFile(t, path, "pdf")

	n := NewNamer(storage.NewDisk())
	for i := 0; i < 2; i++ {
		res, err := n.Rename(path, Date{"2024", "4", "23"})
		require.NoError(t, err)
		assert.Equal(t, Unchanged, res.Outcome)
		assert.Equal(t, path, res.Path)
	}
	assert.Equal(t, "pdf", readFile(t, path))
}

func TestNamer_DuplicateDeletesSource(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "Recibo Nomina 2024_4_23.xml")
	src := filepath.Join(dir, "23.xml")
	writeFile(t, existing, "first")
	writeFile(t, src, "second")

	n := NewNamer(storage.NewDisk())
	res, err := n.Rename(src, Date{"2024", "4", "23"})
	require.NoError(t, err)

	assert.Equal(t, Duplicate, res.Outcome)
	assert.Equal(t, existing, res.Path)
	assert.NoFileExists(t, src)
	assert.Equal(t, "first", readFile(t, existing))
}

func TestNamer_MissingSource(t *testing.T) {
	n := NewNamer(storage.NewDisk())
	_, err := n.Rename(filepath.Join(t.TempDir(), "14.pdf"), Date{"2024", "4", "14"})
	require.Error(t, err)

	var renameErr *RenameError
	assert.ErrorAs(t, err, &renameErr)
}
