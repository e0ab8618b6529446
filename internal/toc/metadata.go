// Copyright 2024 The docpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package toc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bpowers/docpack/internal/cursor"
)

// MetadataTag identifies the kind of an archive-level metadata entry.
// Tag values are part of the format and must never be reused.
type MetadataTag uint8

const (
	metadataEnd MetadataTag = 0

	TagTitle    MetadataTag = 1
	TagAuthor   MetadataTag = 2
	TagLanguage MetadataTag = 3
	TagDate     MetadataTag = 4
	TagLicense  MetadataTag = 5
	TagKeyword  MetadataTag = 6
	TagUser     MetadataTag = 100
)

func (t MetadataTag) String() string {
	switch t {
	case TagTitle:
		return "title"
	case TagAuthor:
		return "author"
	case TagLanguage:
		return "language"
	case TagDate:
		return "date"
	case TagLicense:
		return "license"
	case TagKeyword:
		return "keyword"
	case TagUser:
		return "user"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

func (t MetadataTag) valid() bool {
	switch t {
	case TagTitle, TagAuthor, TagLanguage, TagDate, TagLicense, TagKeyword, TagUser:
		return true
	}
	return false
}

// MetadataEntry is one archive-level metadata item.  Text tags use
// Value; TagDate uses Date; TagUser uses Key and Value.
type MetadataEntry struct {
	Tag   MetadataTag
	Key   string
	Value string
	Date  uint64
}

// Time interprets a TagDate entry as seconds since the Unix epoch.
func (m MetadataEntry) Time() time.Time {
	return time.Unix(int64(m.Date), 0).UTC()
}

func (m MetadataEntry) String() string {
	switch m.Tag {
	case TagDate:
		return fmt.Sprintf("%s=%s", m.Tag, m.Time().Format(time.RFC3339))
	case TagUser:
		return fmt.Sprintf("%s:%s=%q", m.Tag, m.Key, m.Value)
	default:
		return fmt.Sprintf("%s=%q", m.Tag, m.Value)
	}
}

func (m MetadataEntry) value() ([]byte, error) {
	switch m.Tag {
	case TagDate:
		return binary.BigEndian.AppendUint64(nil, m.Date), nil
	case TagUser:
		v := binary.AppendUvarint(nil, uint64(len(m.Key)))
		v = append(v, m.Key...)
		return append(v, m.Value...), nil
	default:
		if !m.Tag.valid() {
			return nil, fmt.Errorf("%s: %w", m.Tag, ErrInvalidMetadata)
		}
		return []byte(m.Value), nil
	}
}

func appendMetadata(dst []byte, entries []MetadataEntry) ([]byte, error) {
	for _, m := range entries {
		v, err := m.value()
		if err != nil {
			return nil, err
		}
		dst = append(dst, byte(m.Tag))
		dst = binary.AppendUvarint(dst, uint64(len(v)))
		dst = append(dst, v...)
	}
	return append(dst, byte(metadataEnd)), nil
}

var errNotUTF8 = errors.New("text is not valid UTF-8")

func decodeText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errNotUTF8
	}
	return string(b), nil
}

func decodeMetadataEntry(tag MetadataTag, v []byte) (MetadataEntry, error) {
	m := MetadataEntry{Tag: tag}
	switch tag {
	case TagTitle, TagAuthor, TagLanguage, TagLicense, TagKeyword:
		s, err := decodeText(v)
		if err != nil {
			return m, err
		}
		m.Value = s
	case TagDate:
		c := cursor.New(v)
		d, err := c.Uint64(binary.BigEndian)
		if err != nil {
			return m, err
		}
		if c.Len() != 0 {
			return m, fmt.Errorf("date is %d bytes, expected 8", len(v))
		}
		m.Date = d
	case TagUser:
		c := cursor.New(v)
		keyLen, err := c.Uvarint()
		if err != nil {
			return m, fmt.Errorf("user key length: %w", err)
		}
		if keyLen > uint64(c.Len()) {
			return m, fmt.Errorf("user key length %d: %w", keyLen, cursor.ErrTruncated)
		}
		k, _ := c.Bytes(int(keyLen))
		if m.Key, err = decodeText(k); err != nil {
			return m, err
		}
		rest, _ := c.Bytes(c.Len())
		if m.Value, err = decodeText(rest); err != nil {
			return m, err
		}
	default:
		return m, fmt.Errorf("unknown tag %d", uint8(tag))
	}
	return m, nil
}

// decodeMetadata reads tag/length/value triples up to the terminating
// zero tag.
func decodeMetadata(c *cursor.Cursor) ([]MetadataEntry, error) {
	var entries []MetadataEntry
	for i := 0; ; i++ {
		t, err := c.Uint8()
		if err != nil {
			return nil, entryErr(StageMetadata, i, err)
		}
		tag := MetadataTag(t)
		if tag == metadataEnd {
			return entries, nil
		}

		n, err := c.Uvarint()
		if err != nil {
			return nil, entryErr(StageMetadata, i, fmt.Errorf("%s length: %w", tag, err))
		}
		if n > uint64(c.Len()) {
			return nil, entryErr(StageMetadata, i, fmt.Errorf("%s length %d: %w", tag, n, cursor.ErrTruncated))
		}
		v, _ := c.Bytes(int(n))

		m, err := decodeMetadataEntry(tag, v)
		if err != nil {
			return nil, entryErr(StageMetadata, i, fmt.Errorf("%s: %v: %w", tag, err, ErrInvalidMetadata))
		}
		entries = append(entries, m)
	}
}
