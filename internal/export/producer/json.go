package producer

import "encoding/json"

// writeJSON serializes a dataset as an array of column-keyed objects.
func writeJSON(ds *Dataset) ([]byte, error) {
	records := make([]map[string]any, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		record := make(map[string]any, len(ds.Columns))
		for i, col := range ds.Columns {
			if i < len(row) {
				record[col] = row[i]
			} else {
				record[col] = nil
			}
		}
		records = append(records, record)
	}
	return json.Marshal(records)
}
