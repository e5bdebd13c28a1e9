package events

import (
	"github.com/ethereum/go-ethereum/event"
	"github.com/rovermap/insd/match"
	"github.com/rovermap/insd/types/pose"
)

// PoseUpdateFeed is emitted for every published pose snapshot, one per
// filter variant per GPS cycle. Subscribers (websocket fanout, the
// influx exporter) must keep up or drop; the feed never blocks the
// engine.
var PoseUpdateFeed = event.FeedOf[*pose.Pose]{}

// RoadMatchFeed is emitted when the matcher associates the fused pose
// with a road segment. A nil-segment Match is never sent; losing the
// road produces silence, not a tombstone.
var RoadMatchFeed = event.FeedOf[*match.Match]{}
