package probes

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/culture-union/checkpulse/models"
)

// DNSProber resolves the target with the system resolver. The record
// type defaults to A; an unsupported record type is a caller mistake and
// yields StatusError, while a failed resolution of a supported type is
// an ordinary StatusFail.
type DNSProber struct {
	timeout  time.Duration
	resolver *net.Resolver
}

func NewDNSProber(timeout time.Duration) *DNSProber {
	return &DNSProber{
		timeout:  timeout,
		resolver: net.DefaultResolver,
	}
}

func (p *DNSProber) Probe(ctx context.Context, task models.Task) models.Result {
	recordType := strings.ToUpper(task.RecordType)
	if recordType == "" {
		recordType = "A"
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	records, err := p.lookup(ctx, recordType, task.Target)
	if err != nil {
		status := models.StatusFail
		if _, unsupported := err.(unsupportedRecordType); unsupported {
			status = models.StatusError
		}
		return models.Result{
			Status: status,
			Data:   &models.ResultData{Type: models.CheckDNS, RecordType: recordType},
			Error:  err.Error(),
		}
	}

	return models.Result{
		Status: models.StatusOK,
		Data: &models.ResultData{
			Type:       models.CheckDNS,
			Records:    records,
			RecordType: recordType,
		},
	}
}

type unsupportedRecordType string

func (u unsupportedRecordType) Error() string {
	return fmt.Sprintf("unsupported record type %q", string(u))
}

func (p *DNSProber) lookup(ctx context.Context, recordType, target string) ([]string, error) {
	switch recordType {
	case "A", "AAAA":
		ips, err := p.resolver.LookupIP(ctx, ipNetwork(recordType), target)
		if err != nil {
			return nil, err
		}
		records := make([]string, 0, len(ips))
		for _, ip := range ips {
			records = append(records, ip.String())
		}
		return records, nil

	case "MX":
		mxs, err := p.resolver.LookupMX(ctx, target)
		if err != nil {
			return nil, err
		}
		records := make([]string, 0, len(mxs))
		for _, mx := range mxs {
			records = append(records, fmt.Sprintf("%d %s", mx.Pref, mx.Host))
		}
		return records, nil

	case "NS":
		nss, err := p.resolver.LookupNS(ctx, target)
		if err != nil {
			return nil, err
		}
		records := make([]string, 0, len(nss))
		for _, ns := range nss {
			records = append(records, ns.Host)
		}
		return records, nil

	case "TXT":
		return p.resolver.LookupTXT(ctx, target)

	case "CNAME":
		cname, err := p.resolver.LookupCNAME(ctx, target)
		if err != nil {
			return nil, err
		}
		return []string{cname}, nil

	default:
		return nil, unsupportedRecordType(recordType)
	}
}

func ipNetwork(recordType string) string {
	if recordType == "AAAA" {
		return "ip6"
	}
	return "ip4"
}
