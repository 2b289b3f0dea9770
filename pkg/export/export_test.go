package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSV(t *testing.T) {
	out, err := RenderCSV(Dataset{
		Headers: []string{"teacher_email", "day_of_week", "subject"},
		Rows: []map[string]string{
			{"teacher_email": "a@example.com", "day_of_week": "1", "subject": "Math, Algebra"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "teacher_email,day_of_week,subject\na@example.com,1,\"Math, Algebra\"\n", string(out))

	_, err = RenderCSV(Dataset{})
	assert.Error(t, err)
}

func TestRenderCSVEscapesFormulasAndWritesBOM(t *testing.T) {
	out, err := RenderCSV(Dataset{
		Headers:  []string{"teacher_name", "subject"},
		Rows:     []map[string]string{{"teacher_name": "=HYPERLINK(\"x\")", "subject": "@risk"}},
		ExcelBOM: true,
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("\xef\xbb\xbf")))
	assert.Equal(t, "teacher_name,subject\n\"'=HYPERLINK(\"\"x\"\")\",'@risk\n", string(StripBOM(out)))
	assert.Equal(t, []byte("a,b"), StripBOM([]byte("a,b")))
}

func TestRenderReceiptPDF(t *testing.T) {
	out, err := RenderReceiptPDF(Receipt{
		Title:    "Tutorhub receipt",
		Number:   "CR-1",
		IssuedAt: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
		BilledTo: "Ada",
		Lines:    []ReceiptLine{{Label: "Subject", Value: "Math"}},
		Total:    "USD 25.00",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = RenderReceiptPDF(Receipt{})
	assert.Error(t, err)
}
