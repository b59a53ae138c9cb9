package importer

import "golang.org/x/text/encoding/japanese"

const sampleCSV = "日付,タイトル,ビュー数,スキ数,コメント数\r\n" +
	"2023-12-01,サンプル記事A,150,15,2\r\n" +
	"2023-12-01,サンプル記事B,80,8,0\r\n"

// SampleCSV returns a template import file, Shift_JIS encoded so that Excel
// opens it without mojibake.
func SampleCSV() ([]byte, error) {
	return japanese.ShiftJIS.NewEncoder().Bytes([]byte(sampleCSV))
}
