// Package benchmark contains Go benchmarks for the tokenizer, the BM25
// index and the ranking pipeline, measuring throughput and allocation
// behaviour over synthetic South Jakarta corpora.
package benchmark

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/dataset"
)

var (
	categories = []string{"Alfamart", "Indomaret", "Kafe", "Apotek", "Restoran", "Masjid", "Bengkel"}
	districts  = []string{"Kebayoran Baru", "Mampang Prapatan", "Cilandak", "Tebet", "Pancoran", "Jagakarsa", "Pasar Minggu"}
	streets    = []string{"Jl. Kemang Raya", "Jl. RS Fatmawati", "Jl. Tebet Raya", "Jl. Ampera Raya", "Jl. Senopati", "Jl. Melawai"}
)

// syntheticRecords builds n deterministic records spread over roughly a
// 10 km box around South Jakarta. Every seventh record has no rating.
func syntheticRecords(n int) []dataset.Record {
	records := make([]dataset.Record, n)
	for i := range records {
		cat := categories[i%len(categories)]
		rec := dataset.Record{
			ID:        fmt.Sprintf("poi-%05d", i),
			Category:  cat,
			Name:      fmt.Sprintf("%s %s %d", cat, districts[i%len(districts)], i),
			Address:   fmt.Sprintf("%s No. %d", streets[i%len(streets)], i%200),
			Village:   fmt.Sprintf("Kelurahan %d", i%40),
			District:  districts[i%len(districts)],
			Latitude:  -6.33 + float64(i%97)*0.001,
			Longitude: 106.75 + float64(i%89)*0.0012,
		}
		if i%7 != 0 {
			rating := 3 + float64(i%21)/10
			rec.Rating = &rating
		}
		pop := (i * 37) % 5000
		rec.Popularity = &pop
		records[i] = rec
	}
	return records
}
