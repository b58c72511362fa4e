package t2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDetailPageHTML = `<html><body>
<div>
  <svg><path d="M2.5 8C2.22386 money-icon"/></svg>
  <div><div>$20/hr</div></div>
</div>
<div>
  <svg><path d="M12 2C15.866 location-icon"/></svg>
  <div><div>Remote - Based in Austin, TX</div></div>
</div>
<div>
  <svg><path d="M11.5527 2.72314 job-icon"/></svg>
  <div><div>Internship</div><div>Full-time</div></div>
</div>
<div>
  <div><h3>At a glance</h3></div>
</div>
<div>
  <div>
    <div><p>We build things.</p></div>
  </div>
</div>
<button aria-label="Apply to this job">Apply</button>
<div>
  <div>
    <a><div>Acme Corp</div></a>
    <a><div>Software</div></a>
  </div>
</div>
<a href="/jobs/12345?searchId=abc"><h1>Software Engineer</h1></a>
<div>Posted 3 days ago &#8729; Apply by January 15, 2026 at 11:59 PM</div>
<input placeholder="Search your resumes">
</body></html>`

func TestParseRawExtractsEveryField(t *testing.T) {
	got, err := ParseRaw(sampleDetailPageHTML)
	require.NoError(t, err)

	require.True(t, got.HasWage)
	require.Equal(t, "$20/hr", got.Wage)

	require.True(t, got.HasLocation)
	require.Equal(t, "Remote - Based in Austin, TX", got.Location)

	require.True(t, got.HasJobType)
	require.Equal(t, "Internship", got.JobType)
	require.True(t, got.HasEmployment)
	require.Equal(t, "Full-time", got.EmploymentType)

	require.True(t, got.HasAbout)
	require.Contains(t, got.AboutHTML, "We build things.")

	require.True(t, got.HasApplyType)
	require.Equal(t, "Apply", got.ApplyType)

	require.True(t, got.HasPosition)
	require.Equal(t, "Software Engineer", got.Position)

	require.True(t, got.HasTimes)
	require.Contains(t, got.Times, "Posted 3 days ago")
	require.Contains(t, got.Times, "Apply by January 15, 2026 at 11:59 PM")

	require.True(t, got.HasCompany)
	require.Equal(t, "Acme Corp", got.Company)
	require.True(t, got.HasIndustry)
	require.Equal(t, "Software", got.Industry)

	require.Equal(t, []string{"Search your resumes"}, got.Documents)
}

func TestParseRawMissingAnchorsAreFalseNotPanic(t *testing.T) {
	got, err := ParseRaw(`<html><body><p>nothing here</p></body></html>`)
	require.NoError(t, err)
	require.False(t, got.HasWage)
	require.False(t, got.HasLocation)
	require.False(t, got.HasJobType)
	require.False(t, got.HasEmployment)
	require.False(t, got.HasAbout)
	require.False(t, got.HasApplyType)
	require.False(t, got.HasPosition)
	require.False(t, got.HasTimes)
	require.False(t, got.HasCompany)
	require.False(t, got.HasIndustry)
	require.Empty(t, got.Documents)
}
