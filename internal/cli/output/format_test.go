package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yaml", input: "yaml", want: FormatYAML},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  table  ", want: FormatTable},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type arenaRow struct {
	Index int    `json:"index" yaml:"index"`
	Size  string `json:"size" yaml:"size"`
}

func TestPrint(t *testing.T) {
	table := NewTableData("ARENA", "SIZE")
	table.AddRow("0", "16MiB")

	t.Run("table renderer", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatTable, table))
		assert.Contains(t, buf.String(), "ARENA")
		assert.Contains(t, buf.String(), "16MiB")
	})

	t.Run("table falls back to yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatTable, arenaRow{Index: 1, Size: "4MiB"}))
		assert.Equal(t, "index: 1\nsize: 4MiB\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatJSON, arenaRow{Index: 1, Size: "4MiB"}))
		assert.JSONEq(t, `{"index":1,"size":"4MiB"}`, buf.String())
	})

	t.Run("unknown", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, Print(&buf, Format("xml"), table))
	})
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	PrintStatus(&buf, StatusOK, "ready", false)
	assert.Equal(t, "ready\n", buf.String())

	buf.Reset()
	PrintStatus(&buf, StatusFail, "corrupt", true)
	assert.Equal(t, "\033[31mcorrupt\033[0m\n", buf.String())

	buf.Reset()
	PrintStatus(&buf, StatusWarn, "unformatted", true)
	assert.Contains(t, buf.String(), "\033[33m")
}
