package sector

// baselineByLevel lists the controls each level adds on top of the levels below it.
var baselineByLevel = []struct {
	level    SecurityLevel
	features []string
}{
	{SecurityStandard, []string{
		"TLS 1.3 for data in transit",
		"AES-256 encryption at rest",
		"Role-based access control",
		"Centralized audit logging",
	}},
	{SecurityEnhanced, []string{
		"Multi-factor authentication",
		"Session timeout and revocation",
		"Security event monitoring",
	}},
	{SecurityHigh, []string{
		"Field-level encryption for sensitive data",
		"Data loss prevention",
		"Periodic penetration testing",
		"Immutable audit trail",
	}},
	{SecurityMilitary, []string{
		"FIPS 140-3 validated cryptography",
		"Air-gap deployment readiness",
		"Hardware security modules (HSM)",
		"Zero-trust network segmentation",
	}},
}

// BaselineSecurityFeatures returns the mandatory controls for level. Each level
// strictly extends the one below it. Unknown levels get the standard baseline.
func BaselineSecurityFeatures(level SecurityLevel) []string {
	rank := level.Rank()
	if rank < 0 {
		rank = 0
	}
	var out []string
	for _, tier := range baselineByLevel {
		if tier.level.Rank() > rank {
			break
		}
		out = append(out, tier.features...)
	}
	return out
}
