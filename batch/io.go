package batch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/rushteam/homeprice/core"
)

// 输出格式
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// OutputHeader 是预测结果文件的列
var OutputHeader = []string{"identifier", "predicted_value", "actual_value"}

// SkippedHeader 是跳过记录文件的列
var SkippedHeader = []string{"index", "identifier", "kind", "field", "reason"}

// OutputRow 是预测结果文件中的一行
type OutputRow struct {
	Identifier     string   `json:"identifier"`
	PredictedValue float64  `json:"predicted_value"`
	ActualValue    *float64 `json:"actual_value"`
}

// ParseCSV 读取带表头的 CSV，每行转换为一条 RawRecord。单元格保持字符串，由转换器做数值校验。
func ParseCSV(r io.Reader) ([]core.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取 CSV 表头失败: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var records []core.RawRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取 CSV 第 %d 行失败: %w", line, err)
		}
		m := make(map[string]string, len(cols))
		for i, c := range cols {
			if i < len(row) {
				m[c] = row[i]
			}
		}
		records = append(records, core.NewRawRecordFromStrings(m))
	}
	return records, nil
}

// ParseJSON 读取 JSON 数组（与 /predict 请求体相同），或每行一个对象的 JSONL。
func ParseJSON(data []byte) ([]core.RawRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var rows []map[string]any
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("解析 JSON 失败: %w", err)
		}
	} else {
		for i, line := range bytes.Split(trimmed, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var m map[string]any
			if err := json.Unmarshal(line, &m); err != nil {
				return nil, fmt.Errorf("解析 JSONL 第 %d 行失败: %w", i+1, err)
			}
			rows = append(rows, m)
		}
	}
	records := make([]core.RawRecord, len(rows))
	for i, m := range rows {
		records[i] = core.NewRawRecord(m)
	}
	return records, nil
}

// Rows 把预测结果转换为输出行；记录没有 id 时用输入下标作为标识
func Rows(pred *core.Prediction) []OutputRow {
	rows := make([]OutputRow, len(pred.Results))
	for i, r := range pred.Results {
		rows[i] = OutputRow{
			Identifier:     identifier(r.ID, r.Index),
			PredictedValue: r.Predicted,
			ActualValue:    r.Actual,
		}
	}
	return rows
}

func identifier(id string, index int) string {
	if id != "" {
		return id
	}
	return strconv.Itoa(index)
}

// EncodeRows 按格式序列化输出行
func EncodeRows(rows []OutputRow, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJSONL:
		for _, r := range rows {
			line, err := json.Marshal(r)
			if err != nil {
				return nil, err
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
	case FormatCSV, "":
		w := csv.NewWriter(&buf)
		if err := w.Write(OutputHeader); err != nil {
			return nil, err
		}
		for _, r := range rows {
			actual := ""
			if r.ActualValue != nil {
				actual = formatFloat(*r.ActualValue)
			}
			if err := w.Write([]string{r.Identifier, formatFloat(r.PredictedValue), actual}); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("未知的输出格式 %q", format)
	}
	return buf.Bytes(), nil
}

// DecodeRows 解析 EncodeRows 写出的内容
func DecodeRows(data []byte, format string) ([]OutputRow, error) {
	switch format {
	case FormatJSONL:
		var rows []OutputRow
		for i, line := range bytes.Split(data, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var r OutputRow
			if err := json.Unmarshal(line, &r); err != nil {
				return nil, fmt.Errorf("解析第 %d 行失败: %w", i+1, err)
			}
			rows = append(rows, r)
		}
		return rows, nil
	case FormatCSV, "":
		all, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, nil
		}
		rows := make([]OutputRow, 0, len(all)-1)
		for i, rec := range all[1:] {
			if len(rec) != len(OutputHeader) {
				return nil, fmt.Errorf("第 %d 行有 %d 列", i+2, len(rec))
			}
			pred, err := strconv.ParseFloat(rec[1], 64)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行 predicted_value: %w", i+2, err)
			}
			r := OutputRow{Identifier: rec[0], PredictedValue: pred}
			if rec[2] != "" {
				actual, err := strconv.ParseFloat(rec[2], 64)
				if err != nil {
					return nil, fmt.Errorf("第 %d 行 actual_value: %w", i+2, err)
				}
				r.ActualValue = &actual
			}
			rows = append(rows, r)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("未知的输出格式 %q", format)
	}
}

// EncodeSkipped 把跳过记录写成 CSV
func EncodeSkipped(skipped []core.SkippedRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(SkippedHeader); err != nil {
		return nil, err
	}
	for _, s := range skipped {
		if err := w.Write([]string{strconv.Itoa(s.Index), identifier(s.ID, s.Index), string(s.Kind), s.Field, s.Reason}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
