package renewal

import (
	"testing"
	"time"
)

func TestParseRenewUntilFourDigitYear(t *testing.T) {
	output := []byte("Ticket cache: FILE:/tmp/krb5cc#Default principal: webapp01$@CONTOSO.COM#Valid starting       Expires              Service principal#renew until 12/04/2024 19:39:06#")
	got, ok := ParseRenewUntil(output)
	if !ok {
		t.Fatal("ParseRenewUntil: want ok=true")
	}
	want := time.Date(2024, time.December, 4, 19, 39, 6, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("ParseRenewUntil = %v, want %v", got, want)
	}
}

func TestParseRenewUntilTwoDigitYear(t *testing.T) {
	output := []byte("#renew until 12/04/24 19:39:06#")
	got, ok := ParseRenewUntil(output)
	if !ok {
		t.Fatal("ParseRenewUntil: want ok=true")
	}
	if got.Year() != 2024 {
		t.Errorf("year = %d, want 2024", got.Year())
	}
}

func TestParseRenewUntilUnparseable(t *testing.T) {
	_, ok := ParseRenewUntil([]byte("#no renewal information here#"))
	if ok {
		t.Fatal("ParseRenewUntil: want ok=false for unparseable output")
	}
}

func TestParseRenewUntilIsLocalNotUTC(t *testing.T) {
	got, ok := ParseRenewUntil([]byte("#renew until 01/15/2025 08:00:00#"))
	if !ok {
		t.Fatal("ParseRenewUntil: want ok=true")
	}
	if got.Location() != time.Local {
		t.Errorf("Location = %v, want time.Local", got.Location())
	}
}
