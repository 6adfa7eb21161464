package util

import (
	"strings"

	"github.com/sirupsen/logrus"
)

func ContinueOrFatal(err error) {
	if err != nil {
		logrus.Fatal(err)
	}
}

// SubjectToken makes a broker code safe to use as a single NATS subject token.
func SubjectToken(raw string) string {
	replacer := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	token := replacer.Replace(strings.TrimSpace(raw))
	if token == "" {
		return "_"
	}
	return token
}
