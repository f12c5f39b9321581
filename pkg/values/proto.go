package values

import (
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// ToProto converts t to the protobuf well-known Timestamp, the wire
// representation a RemoteBackend speaking gRPC to an external service
// exchanges in place of the archive's own microsecond integer. The
// MinTimestamp/MaxTimestamp sentinels convert like any other instant;
// callers that need to detect them do so on the Timestamp side, before
// conversion.
func (t Timestamp) ToProto() *timestamppb.Timestamp {
	sec := int64(t) / microsPerSecond
	micro := int64(t) % microsPerSecond
	if micro < 0 {
		micro += microsPerSecond
		sec--
	}
	return timestamppb.New(time.Unix(sec, micro*1000).UTC())
}

// TimestampFromProto converts a protobuf wire Timestamp back to the
// archive's own microsecond-since-epoch representation, truncating any
// sub-microsecond nanosecond remainder the wire format can carry but
// Timestamp cannot.
func TimestampFromProto(ts *timestamppb.Timestamp) Timestamp {
	t := ts.AsTime()
	return Timestamp(t.Unix()*microsPerSecond + int64(t.Nanosecond())/1000)
}
