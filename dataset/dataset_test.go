package dataset

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mail-thread-digest/model"
)

const detailsCSV = `thread_id,subject,timestamp,from,body
t2,Re: lunch,2002-01-29 10:00:00,bob,"second t2"
t1,budget,2002-01-28 09:00:00,alice,"first t1"
t2,lunch,2002-01-28 12:00:00,alice,"first t2"
t1,Re: budget,2002-01-30 08:00:00,bob,"second t1"
`

func TestReadDetailsAndGroup(t *testing.T) {
	records, err := ReadDetails(strings.NewReader(detailsCSV))
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, time.Date(2002, 1, 29, 10, 0, 0, 0, time.UTC), records[0].Timestamp)

	docs := Group(records)
	assert.Equal(t, []model.ThreadDocument{
		{ThreadID: "t1", EmailsText: "first t1 second t1"},
		{ThreadID: "t2", EmailsText: "first t2 second t2"},
	}, docs)
}

func TestGroup_NumericIDsAndMissingTimestamps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2002, time.January, d, 0, 0, 0, 0, time.UTC) }
	records := []model.MessageRecord{
		{ThreadID: "10", Timestamp: day(1), Body: "ten"},
		{ThreadID: "abc", Timestamp: day(1), Body: "letters"},
		{ThreadID: "9", Body: "undated"},
		{ThreadID: "9", Timestamp: day(2), Body: "second"},
		{ThreadID: "9", Timestamp: day(1), Body: "first"},
	}

	docs := Group(records)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"9", "10", "abc"}, []string{docs[0].ThreadID, docs[1].ThreadID, docs[2].ThreadID})
	assert.Equal(t, "first second undated", docs[0].EmailsText)
}

func TestMessages(t *testing.T) {
	docs := Messages([]model.MessageRecord{
		{ThreadID: "t2", Body: "b"},
		{ThreadID: "t1", Body: "a"},
	})
	assert.Equal(t, []model.ThreadDocument{
		{ThreadID: "t2", EmailsText: "b"},
		{ThreadID: "t1", EmailsText: "a"},
	}, docs)
}

func TestReadDetails_MissingColumn(t *testing.T) {
	_, err := ReadDetails(strings.NewReader("thread_id,timestamp\nt1,2002-01-01\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = ReadDetails(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadDetails_BadTimestampIsZero(t *testing.T) {
	records, err := ReadDetails(strings.NewReader("thread_id,timestamp,body\nt1,not a time,hello\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Timestamp.IsZero())
}

func TestMerge(t *testing.T) {
	docs := []model.ThreadDocument{
		{ThreadID: "t1", EmailsText: "a"},
		{ThreadID: "t2", EmailsText: "b"},
		{ThreadID: "t3", EmailsText: "c"},
	}

	summaries, err := ReadSummaries(strings.NewReader("thread_id,summary\nt3,third\nt1,first\n"))
	require.NoError(t, err)

	merged := Merge(docs, summaries)
	assert.Equal(t, []model.ThreadDocument{
		{ThreadID: "t1", EmailsText: "a", Summary: "first"},
		{ThreadID: "t3", EmailsText: "c", Summary: "third"},
	}, merged)

	assert.Equal(t, docs, Merge(docs, nil))
}

func TestWriteAndReadThreads(t *testing.T) {
	docs := []model.ThreadDocument{
		{ThreadID: "t1", EmailsText: "Sent: Tue, 29 Jan 2002\nline, with \"quotes\"", Summary: "s1"},
		{ThreadID: "t2", EmailsText: "plain"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteThreads(&buf, docs))
	assert.True(t, strings.HasPrefix(buf.String(), "thread_id,emails_text,summary\n"))

	got, err := ReadThreads(&buf)
	require.NoError(t, err)
	assert.Equal(t, docs, got)
}

func TestReadThreads_OptionalSummaryAndBOM(t *testing.T) {
	got, err := ReadThreads(strings.NewReader("\ufeffThread_ID,Emails_Text\nt1,hello\n"))
	require.NoError(t, err)
	assert.Equal(t, []model.ThreadDocument{{ThreadID: "t1", EmailsText: "hello"}}, got)
}
