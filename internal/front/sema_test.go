package front

import "testing"

func checkSrc(t *testing.T, src string) error {
	t.Helper()
	prog, err := ParseProgram(src)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	return Check(prog)
}

func TestSemaAcceptsWellTypedProgram(t *testing.T) {
	src := `
class Counter {
	int x;
	void bump() { this.x = this.x + 1; }
	int get() { return this.x; }
}
int main() {
	Counter c = new Counter();
	c.bump();
	c.bump();
	c.bump();
	println(toString(c.get()));
	return 0;
}
`
	if err := checkSrc(t, src); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestSemaRejectsUndefinedIdentifier(t *testing.T) {
	err := checkSrc(t, `int main() { return y; }`)
	if err == nil {
		t.Fatal("expected a semantic error for an undefined identifier")
	}
}

func TestSemaRejectsTypeMismatchInReturn(t *testing.T) {
	err := checkSrc(t, `int main() { return true; }`)
	if err == nil {
		t.Fatal("expected a semantic error assigning bool to an int return")
	}
}

func TestSemaRejectsDuplicateClass(t *testing.T) {
	src := `
class A { int x; }
class A { int y; }
int main() { return 0; }
`
	err := checkSrc(t, src)
	if err == nil {
		t.Fatal("expected a semantic error for a duplicate class declaration")
	}
}

func TestSemaRejectsOrderedCompareOnString(t *testing.T) {
	err := checkSrc(t, `int main() { string a = "x"; string b = "y"; return a < b; }`)
	if err == nil {
		t.Fatal("expected a semantic error: ordered comparison is int-only")
	}
}
