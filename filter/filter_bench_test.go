package filter

import (
	"strings"
	"testing"

	"github.com/dhcgn/mail-thread-digest/model"
)

var benchDoc = model.ThreadDocument{
	ThreadID:   "enron-1042",
	EmailsText: strings.Repeat("Sent: Tuesday, January 29, 2002 10:15 AM\nPlease see the attached budget.\n", 20),
}

func BenchmarkFilter_AllowsDocument_NoFilters(b *testing.B) {
	f, err := New(Options{})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.AllowsDocument(benchDoc)
	}
}

func BenchmarkFilter_AllowsDocument_ThreadID(b *testing.B) {
	f, err := New(Options{IncludeHeader: []string{`^Thread-Id: enron-\d+$`}})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.AllowsDocument(benchDoc)
	}
}

func BenchmarkFilter_AllowsDocument_BodyExclude(b *testing.B) {
	f, err := New(Options{ExcludeBody: []string{"(?i)unsubscribe", "(?i)out of office"}})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.AllowsDocument(benchDoc)
	}
}

func BenchmarkSplitRawMessage(b *testing.B) {
	raw := []byte("From: alice@example.com\r\nSubject: budget\r\n\r\nSent: Tuesday, January 29, 2002 10:15 AM")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SplitRawMessage(raw)
	}
}
