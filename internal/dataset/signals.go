package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/newthinker/quantbench/internal/core"
)

var signalAliases = map[string][]string{
	"buy":         {"buysignal", "buy_signal", "buy"},
	"sell":        {"sellsignal", "sell_signal", "sell"},
	"description": {"description"},
}

// LoadSignals reads a signal series from a CSV file
func LoadSignals(path string) ([]core.SignalBar, error) {
	signals, err := readCSVFile(path, ReadSignalsCSV)
	if err != nil {
		return nil, core.WrapError(core.ErrSignalData, fmt.Errorf("%s: %w", path, err))
	}
	return signals, nil
}

// ReadSignalsCSV parses a signal CSV with BuySignal and SellSignal columns.
// Extra columns, such as the indicator values a generator emits, are ignored.
func ReadSignalsCSV(r io.Reader) ([]core.SignalBar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty signal file")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := indexColumns(header, signalAliases)
	for _, required := range []string{"buy", "sell"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %q signal column", required)
		}
	}
	descIdx, hasDesc := cols["description"]

	var signals []core.SignalBar
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		buy, err := core.ParseFlag(cell(record, cols["buy"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sell, err := core.ParseFlag(cell(record, cols["sell"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		sig := core.SignalBar{Buy: buy, Sell: sell}
		if hasDesc {
			sig.Description = cell(record, descIdx)
		}
		signals = append(signals, sig)
	}

	return signals, nil
}

// WriteSignalsCSV writes signals in the layout ReadSignalsCSV accepts
func WriteSignalsCSV(w io.Writer, signals []core.SignalBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"BuySignal", "SellSignal", "Description"}); err != nil {
		return err
	}
	for _, s := range signals {
		if err := cw.Write([]string{flag(s.Buy), flag(s.Sell), s.Description}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
