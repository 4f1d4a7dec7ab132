package text_test

import (
	"fmt"

	"github.com/walteh/adtclean/pkg/text"
)

func ExampleSanitize() {
	raw := []byte("REPORT ztest.\r\nWRITE 'hello'.\r\n")

	clean, err := text.Sanitize(raw)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("%q\n", clean)
	fmt.Printf("%q\n", text.ApplyLineEnding(clean, text.DetectLineEnding(string(raw))))
	// Output:
	// "REPORT ztest.\nWRITE 'hello'.\n"
	// "REPORT ztest.\r\nWRITE 'hello'.\r\n"
}
