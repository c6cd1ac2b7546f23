package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"strings"
	"testing"

	"github.com/nvandessel/bucketsim/internal/fairness"
)

func TestWriteMemberCSV(t *testing.T) {
	rows := []fairness.MemberResult{
		{Identity: "1", Partition: "2", Control: 3, Treatment: 1, Delta: 2, ChiSquare: 1, PValue: 0.3173105078629141},
		{Identity: "2", Partition: "1", Control: 2, Treatment: 2, Delta: 0, ChiSquare: 0, PValue: 1},
		{Identity: "3", Partition: "1", Control: 0, Treatment: 0, ChiSquare: math.NaN(), PValue: math.NaN()},
	}

	var buf bytes.Buffer
	n, err := WriteMemberCSV(&buf, rows, nil)
	if err != nil {
		t.Fatalf("WriteMemberCSV() error = %v", err)
	}
	if n != 3 {
		t.Errorf("rows written = %d, want 3", n)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if got := strings.Join(records[0], ","); got != "identity,partition,control,treatment,delta,p_value,chi_square" {
		t.Errorf("header = %s", got)
	}
	if got := strings.Join(records[1], ","); got != "1,2,3,1,2,0.3173105078629141,1" {
		t.Errorf("row 1 = %s", got)
	}
	if records[3][5] != "NA" || records[3][6] != "NA" {
		t.Errorf("NaN not written as NA: %v", records[3])
	}
}

func TestWriteMemberCSV_Config(t *testing.T) {
	rows := []fairness.MemberResult{{Identity: "7", Partition: "1", Control: 1, PValue: 0.123456789, ChiSquare: 1}}

	var buf bytes.Buffer
	cfg := &CSVConfig{IncludeHeader: false, Precision: 3, NAString: ""}
	if _, err := WriteMemberCSV(&buf, rows, cfg); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "7,1,1,0,0,0.123,1.000" {
		t.Errorf("output = %q", got)
	}
}

func TestWritePartitionCSV(t *testing.T) {
	rows := []fairness.PartitionResult{
		{Experiment: "ABCDEFGH", Seq: 1, Partition: "1", Control: 10, Treatment: 10, ChiSquare: 0, PValue: 1},
		{Experiment: "ABCDEFGH", Seq: 1, Partition: "2", Control: 15, Treatment: 5, ChiSquare: 5, PValue: 0.025},
	}

	var buf bytes.Buffer
	if _, err := WritePartitionCSV(&buf, rows, nil); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "experiment,seq,partition,control,treatment,p_value,chi_square" {
		t.Errorf("header = %s", lines[0])
	}
	if lines[2] != "ABCDEFGH,1,2,15,5,0.025,5" {
		t.Errorf("row 2 = %s", lines[2])
	}
}
