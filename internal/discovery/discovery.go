// Package discovery recovers the publish resume point from the
// externally visible output partitions when no local checkpoint exists.
package discovery

import (
	"context"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/cnehgus0620/aiot-manager/internal/log"
	"github.com/cnehgus0620/aiot-manager/internal/windows"
)

// partitionPattern matches the time-encoded path segments of published
// object keys, e.g. ".../year=2025/month=11/day=08/hour=00/min5=05/...".
var partitionPattern = regexp.MustCompile(
	`year=(\d{4})/month=(\d{1,2})/day=(\d{1,2})/hour=(\d{1,2})/min5=(\d{1,2})`)

// dataExtensions are the object suffixes counted as published output;
// anything else under the prefix (markers, manifests) is ignored.
var dataExtensions = map[string]struct{}{
	".parquet": {},
	".json":    {},
	".csv":     {},
	".gz":      {},
	".orc":     {},
}

// Discovery lists published partitions in an object store bucket.
type Discovery struct {
	client s3iface.S3API
	bucket string
	prefix string
	//zone the partition key time-parts are encoded in
	zone   *time.Location
	logger log.Logger
}

func New(client s3iface.S3API, bucket, prefix string, zone *time.Location, logger log.Logger) *Discovery {
	return &Discovery{
		client: client,
		bucket: bucket,
		prefix: prefix,
		zone:   zone,
		logger: logger.Named("discovery"),
	}
}

// LatestPublishedWindowEnd scans the bucket for the most recent
// published partition and returns its window end as a UTC instant.
// It returns ok=false when listing fails or nothing parses: a missing
// answer, never "start from epoch".
func (d *Discovery) LatestPublishedWindowEnd(ctx context.Context) (time.Time, bool) {
	var latest time.Time
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.prefix),
	}
	err := d.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, object := range page.Contents {
				key := aws.StringValue(object.Key)
				end, ok := d.parseKey(key)
				if !ok {
					continue
				}
				if end.After(latest) {
					latest = end
				}
			}
			return true
		})
	if err != nil {
		d.logger.Warnw("failed to list published partitions", "bucket", d.bucket, "prefix", d.prefix, "err", err)
		return time.Time{}, false
	}
	if latest.IsZero() {
		d.logger.Infow("no published partitions found", "bucket", d.bucket, "prefix", d.prefix)
		return time.Time{}, false
	}
	return latest, true
}

// parseKey converts one object key to its window-end instant.
// Unparsable keys are skipped, never fatal to the discovery pass.
func (d *Discovery) parseKey(key string) (time.Time, bool) {
	if _, ok := dataExtensions[strings.ToLower(path.Ext(key))]; !ok {
		return time.Time{}, false
	}
	m := partitionPattern.FindStringSubmatch(key)
	if m == nil {
		d.logger.Debugw("skipping key without partition time-parts", "key", key)
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	min5, _ := strconv.Atoi(m[5])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || min5 > 59 || min5%5 != 0 {
		d.logger.Debugw("skipping key with implausible time-parts", "key", key)
		return time.Time{}, false
	}
	start := time.Date(year, time.Month(month), day, hour, min5, 0, 0, d.zone)
	return start.Add(windows.Size).UTC(), true
}
