package classify

import "testing"

func TestIsCompanyID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"urn:li:company:12345", true},
		{"URN:LI:COMPANY:12345", true}, // 大小写不敏感
		{"urn:li:person:abcde", false},
		{"", false},
		{"company:12345", false},
	}
	for _, c := range cases {
		if got := IsCompanyID(c.id); got != c.want {
			t.Errorf("IsCompanyID(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestIsCompanyChatSender(t *testing.T) {
	if !IsCompanyChat("urn:li:company:1", nil) {
		t.Error("company sender should classify as company chat")
	}
	if IsCompanyChat("urn:li:person:1", nil) {
		t.Error("person sender without attendees should classify as personal")
	}
}

func TestIsCompanyChatMajorityBoundary(t *testing.T) {
	person := "urn:li:person:x"
	company := "urn:li:company:x"

	// 恰好一半（2/4）=> 个人
	half := []string{company, company, person, person}
	if IsCompanyChat("", half) {
		t.Error("exactly half company attendees must classify as personal")
	}

	// 严格过半（3/4）=> 机构
	majority := []string{company, company, company, person}
	if !IsCompanyChat("", majority) {
		t.Error("3 of 4 company attendees must classify as company")
	}
}

func TestIsCompanyChatEmptyInput(t *testing.T) {
	if IsCompanyChat("", nil) {
		t.Error("empty input must classify as personal")
	}
	if IsCompanyChat("", []string{}) {
		t.Error("empty attendee list must classify as personal")
	}
}
