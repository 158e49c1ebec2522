package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

const timestampFullName protoreflect.FullName = "google.protobuf.Timestamp"

// maxLineSize bounds a single JSON record line.
const maxLineSize = 4 << 20

// ProtoSource describes a JSON-lines record file typed by a .proto schema.
type ProtoSource struct {
	ProtoFile      string // path of the .proto definition
	Message        string // message name; empty selects the first top-level message
	Path           string // JSON-lines file, one message per line
	TimestampField string // field holding the record time
}

// CompileMessage compiles a .proto definition held in memory and returns the
// named message, or the first top-level message when name is empty.
func CompileMessage(ctx context.Context, fileName, definition, name string) (protoreflect.MessageDescriptor, error) {
	resolver := &singleFileResolver{
		fileName: fileName,
		content:  definition,
	}
	compiler := protocompile.Compiler{
		Resolver:       protocompile.WithStandardImports(resolver),
		SourceInfoMode: protocompile.SourceInfoNone,
	}

	files, err := compiler.Compile(ctx, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile proto: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files compiled")
	}

	messages := files[0].Messages()
	if messages.Len() == 0 {
		return nil, fmt.Errorf("proto must define at least one message")
	}
	if name == "" {
		return messages.Get(0), nil
	}
	for i := 0; i < messages.Len(); i++ {
		md := messages.Get(i)
		if string(md.Name()) == name || string(md.FullName()) == name {
			return md, nil
		}
	}
	return nil, fmt.Errorf("message %q not found in %s", name, fileName)
}

// singleFileResolver serves one in-memory file to the compiler.
type singleFileResolver struct {
	fileName string
	content  string
}

func (r *singleFileResolver) FindFileByPath(path string) (protocompile.SearchResult, error) {
	if path == r.fileName {
		return protocompile.SearchResult{
			Source: strings.NewReader(r.content),
		}, nil
	}
	return protocompile.SearchResult{}, fmt.Errorf("file not found: %s", path)
}

// ProtoRecord is a dynamic protobuf message with a record time. Fields are
// addressed by proto name or JSON name, case-insensitively.
type ProtoRecord struct {
	protoMessage
	at time.Time
}

// Timestamp returns the value of the source's timestamp field.
func (r *ProtoRecord) Timestamp() time.Time { return r.at }

// Message returns the underlying message.
func (r *ProtoRecord) Message() protoreflect.Message { return r.msg }

// LoadProtoRecords compiles src.ProtoFile and decodes every non-empty line of
// src.Path with protojson. Records are returned ordered by time.
func LoadProtoRecords(ctx context.Context, src ProtoSource) ([]*ProtoRecord, error) {
	if src.TimestampField == "" {
		return nil, fmt.Errorf("proto source: timestamp field is required")
	}
	definition, err := os.ReadFile(src.ProtoFile)
	if err != nil {
		return nil, fmt.Errorf("reading proto file: %w", err)
	}
	md, err := CompileMessage(ctx, filepath.Base(src.ProtoFile), string(definition), src.Message)
	if err != nil {
		return nil, err
	}
	tsField := findField(md, src.TimestampField)
	if tsField == nil {
		return nil, fmt.Errorf("message %s has no field %q", md.FullName(), src.TimestampField)
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("opening record file: %w", err)
	}
	defer f.Close()

	var records []*ProtoRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		msg := dynamicpb.NewMessage(md)
		if err := protojson.Unmarshal(text, msg); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", src.Path, line, err)
		}
		at, err := timestampOf(msg, tsField)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", src.Path, line, err)
		}
		records = append(records, &ProtoRecord{protoMessage: protoMessage{msg: msg}, at: at})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading record file: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].at.Before(records[j].at)
	})
	return records, nil
}

// timestampOf reads a google.protobuf.Timestamp, an RFC 3339 string or an
// integer of Unix milliseconds.
func timestampOf(msg protoreflect.Message, fd protoreflect.FieldDescriptor) (time.Time, error) {
	if !msg.Has(fd) {
		return time.Time{}, fmt.Errorf("timestamp field %q is not set", fd.Name())
	}
	v := msg.Get(fd)
	switch fd.Kind() {
	case protoreflect.MessageKind:
		if fd.Message().FullName() != timestampFullName {
			break
		}
		ts := v.Message()
		fields := fd.Message().Fields()
		seconds := ts.Get(fields.ByName("seconds")).Int()
		nanos := ts.Get(fields.ByName("nanos")).Int()
		return time.Unix(seconds, nanos).UTC(), nil
	case protoreflect.StringKind:
		return parseTimestamp(v.String())
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return time.UnixMilli(v.Int()).UTC(), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return time.UnixMilli(int64(v.Uint())).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("field %q of kind %s cannot hold a timestamp", fd.Name(), fd.Kind())
}

// protoMessage exposes message fields to path resolution. Nested messages
// resolve to nested accessors, maps with string keys to maps.
type protoMessage struct {
	msg protoreflect.Message
}

func (m protoMessage) Field(name string) (any, bool) {
	fd := findField(m.msg.Descriptor(), name)
	if fd == nil {
		return nil, false
	}
	v := m.msg.Get(fd)

	switch {
	case fd.IsList():
		list := v.List()
		out := make([]any, list.Len())
		for i := range out {
			out[i] = scalar(fd, list.Get(i))
		}
		return out, true
	case fd.IsMap():
		if fd.MapKey().Kind() != protoreflect.StringKind {
			return nil, true
		}
		out := make(map[string]any)
		v.Map().Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			out[k.String()] = scalar(fd.MapValue(), mv)
			return true
		})
		return out, true
	}
	return scalar(fd, v), true
}

func scalar(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		if fd.Message().FullName() == timestampFullName {
			fields := fd.Message().Fields()
			ts := v.Message()
			return time.Unix(ts.Get(fields.ByName("seconds")).Int(), ts.Get(fields.ByName("nanos")).Int()).UnixMilli()
		}
		return protoMessage{msg: v.Message()}
	case protoreflect.EnumKind:
		return int32(v.Enum())
	default:
		return v.Interface()
	}
}

func findField(md protoreflect.MessageDescriptor, name string) protoreflect.FieldDescriptor {
	fields := md.Fields()
	if fd := fields.ByName(protoreflect.Name(name)); fd != nil {
		return fd
	}
	if fd := fields.ByJSONName(name); fd != nil {
		return fd
	}
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if strings.EqualFold(string(fd.Name()), name) || strings.EqualFold(fd.JSONName(), name) {
			return fd
		}
	}
	return nil
}
