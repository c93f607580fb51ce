package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/cnehgus0620/aiot-manager/internal/log"
)

type fakeS3 struct {
	s3iface.S3API
	keys []string
	err  error
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, _ *s3.ListObjectsV2Input,
	fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	if f.err != nil {
		return f.err
	}
	//two pages to exercise pagination
	half := len(f.keys) / 2
	pages := [][]string{f.keys[:half], f.keys[half:]}
	for i, page := range pages {
		out := &s3.ListObjectsV2Output{}
		for _, k := range page {
			out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
		}
		if !fn(out, i == len(pages)-1) {
			break
		}
	}
	return nil
}

func newDiscovery(client s3iface.S3API, zone *time.Location) *Discovery {
	return New(client, "aiot-out", "iot/sensor/minute", zone, log.NewNop())
}

func TestLatestPublishedWindowEnd(t *testing.T) {
	client := &fakeS3{keys: []string{
		"iot/sensor/minute/year=2025/month=11/day=07/hour=23/min5=55/part-0000.parquet",
		"iot/sensor/minute/year=2025/month=11/day=08/hour=00/min5=00/part-0000.parquet",
		"iot/sensor/minute/year=2025/month=11/day=08/hour=00/min5=05/part-0000.parquet",
		"iot/sensor/minute/year=2025/month=11/day=08/hour=00/min5=05/part-0001.parquet",
	}}
	got, ok := newDiscovery(client, time.UTC).LatestPublishedWindowEnd(context.Background())
	assert.True(t, ok)
	// bucket end = bucket start + 5 minutes
	assert.Equal(t, time.Date(2025, 11, 8, 0, 10, 0, 0, time.UTC), got)
}

func TestLatestSkipsMalformedKeys(t *testing.T) {
	client := &fakeS3{keys: []string{
		"iot/sensor/minute/_SUCCESS",
		"iot/sensor/minute/year=2025/month=11/day=08/manifest.txt",
		"iot/sensor/minute/year=2025/month=13/day=08/hour=00/min5=05/part.parquet",
		"iot/sensor/minute/year=2025/month=11/day=08/hour=00/min5=07/part.parquet",
		"iot/sensor/minute/year=2025/month=11/day=08/hour=00/min5=00/part-0000.json",
	}}
	got, ok := newDiscovery(client, time.UTC).LatestPublishedWindowEnd(context.Background())
	assert.True(t, ok)
	//only the well-formed json key counts
	assert.Equal(t, time.Date(2025, 11, 8, 0, 5, 0, 0, time.UTC), got)
}

func TestLatestConvertsPartitionZone(t *testing.T) {
	kst := time.FixedZone("KST", 9*3600)
	client := &fakeS3{keys: []string{
		"iot/sensor/minute/year=2025/month=11/day=08/hour=09/min5=05/part.parquet",
	}}
	got, ok := newDiscovery(client, kst).LatestPublishedWindowEnd(context.Background())
	assert.True(t, ok)
	//09:05 KST == 00:05 UTC, window end 00:10 UTC
	assert.Equal(t, time.Date(2025, 11, 8, 0, 10, 0, 0, time.UTC), got)
}

func TestListingFailureReturnsNone(t *testing.T) {
	client := &fakeS3{err: errors.New("access denied")}
	_, ok := newDiscovery(client, time.UTC).LatestPublishedWindowEnd(context.Background())
	assert.False(t, ok)
}

func TestEmptyListingReturnsNone(t *testing.T) {
	_, ok := newDiscovery(&fakeS3{}, time.UTC).LatestPublishedWindowEnd(context.Background())
	assert.False(t, ok)
}
