package state

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/varun432/algotrader/internal/broker"
)

// MalformedPositionRecordError reports a bad line in the open-positions
// file. The file is operator-edited, so failing fast beats silently
// defaulting a direction or price.
type MalformedPositionRecordError struct {
	Path string
	Line int
	Text string
}

func (e *MalformedPositionRecordError) Error() string {
	return fmt.Sprintf("positions file %s line %d: malformed record %q (want DIRECTION:PRICE)", e.Path, e.Line, e.Text)
}

// ReadPositionsFile parses the line-oriented DIRECTION:PRICE open-positions
// file. Direction tokens are case-insensitive; blank lines are skipped.
func ReadPositionsFile(path string) ([]Order, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var orders []Order
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, &MalformedPositionRecordError{Path: path, Line: lineNo, Text: line}
		}
		dir, ok := broker.ParseDirection(parts[0])
		if !ok {
			return nil, &MalformedPositionRecordError{Path: path, Line: lineNo, Text: line}
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, &MalformedPositionRecordError{Path: path, Line: lineNo, Text: line}
		}
		orders = append(orders, Order{Direction: dir, Price: price, ExpectedPrice: price})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// WritePositionsFile rewrites the open-positions file wholesale, one
// DIRECTION:PRICE record per open leg.
func WritePositionsFile(path string, orders []Order) error {
	var b strings.Builder
	for _, o := range orders {
		fmt.Fprintf(&b, "%s:%s\n", o.Direction, strconv.FormatFloat(o.Price, 'f', -1, 64))
	}
	return writeFileAtomic(path, []byte(b.String()), 0o644)
}
