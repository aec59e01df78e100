package entry

import "github.com/martin-sucha/zipcore/format"

// TimestampExtraFields builds the extra-field tuples this entry's
// TimestampKinds selects: DOS (already carried in the header's own
// ModDate/ModTime, not an extra field - so DOS here contributes nothing
// extra), NTFS 64-bit ticks, and Unix extended time. forCentral trims the
// Unix field to modification-time-only, which is the conventional shape
// for a central-directory copy of 0x5455.
func (e *Entry) TimestampExtraFields(forCentral bool) []format.Field {
	var fields []format.Field
	if e.TimestampKinds&TimestampNTFS != 0 {
		fields = append(fields, format.Field{
			Tag:     format.ExtraNTFSTime,
			Payload: format.BuildNTFSTimeExtra(e.Times.Modified, e.Times.Accessed, e.Times.Created),
		})
	}
	if e.TimestampKinds&TimestampUnix != 0 {
		hasAccess := !e.Times.Accessed.IsZero()
		hasCreate := !e.Times.Created.IsZero()
		fields = append(fields, format.Field{
			Tag:     format.ExtraUnixTime,
			Payload: format.BuildUnixTimeExtra(e.Times.Modified, e.Times.Accessed, e.Times.Created, hasAccess, hasCreate, forCentral),
		})
	}
	return fields
}

// ApplyTimestampExtra reads back whichever timestamp extra fields are
// present in raw and applies them to e.Times, preferring NTFS (100ns
// resolution) over Unix-extended (1s resolution) when both are present.
func (e *Entry) ApplyTimestampExtra(raw []byte) {
	fields := format.ParseFields(raw)
	if payload, ok := format.FindField(fields, format.ExtraNTFSTime); ok {
		if mtime, atime, ctime, ok := format.ParseNTFSTimeExtra(payload); ok {
			e.Times = Times{Modified: mtime, Accessed: atime, Created: ctime}
			e.TimestampKinds |= TimestampNTFS
			return
		}
	}
	if payload, ok := format.FindField(fields, format.ExtraUnixTime); ok {
		mtime, atime, ctime, hasMod, hasAccess, hasCreate := format.ParseUnixTimeExtra(payload)
		if hasMod {
			e.Times.Modified = mtime
		}
		if hasAccess {
			e.Times.Accessed = atime
		}
		if hasCreate {
			e.Times.Created = ctime
		}
		if hasMod || hasAccess || hasCreate {
			e.TimestampKinds |= TimestampUnix
		}
	}
}
