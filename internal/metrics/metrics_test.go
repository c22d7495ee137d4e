package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveProxyResponse(t *testing.T) {
	before := testutil.ToFloat64(proxyResponses.WithLabelValues("GET", "206"))
	bytesBefore := testutil.ToFloat64(proxyBytes)

	ObserveProxyResponse("GET", 206, 100)
	ObserveProxyResponse("GET", 206, 0)

	assert.Equal(t, before+2, testutil.ToFloat64(proxyResponses.WithLabelValues("GET", "206")))
	assert.Equal(t, bytesBefore+100, testutil.ToFloat64(proxyBytes))
}

func TestCounters(t *testing.T) {
	up := testutil.ToFloat64(uploads.WithLabelValues("server"))
	grants := testutil.ToFloat64(presignGrants)
	errs := testutil.ToFloat64(storeErrors.WithLabelValues("get", "not_found"))

	IncUpload("server")
	IncPresignGrant()
	IncStoreError("get", "not_found")

	assert.Equal(t, up+1, testutil.ToFloat64(uploads.WithLabelValues("server")))
	assert.Equal(t, grants+1, testutil.ToFloat64(presignGrants))
	assert.Equal(t, errs+1, testutil.ToFloat64(storeErrors.WithLabelValues("get", "not_found")))
}
