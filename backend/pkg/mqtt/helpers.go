package mqtt

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"arksync/backend/pkg/pathspec"
)

// operation is what publications and subscriptions have in common.
type operation struct {
	id      string
	summary string
	qos     QoS
	params  []TopicParameter
}

func (op operation) validate() error {
	switch {
	case op.id == "":
		return errors.New("operationID is required")
	case op.summary == "":
		return errors.New("summary is required")
	case op.qos > QoSExactlyOnce:
		return errors.New("qos must be 0, 1, or 2")
	}

	return nil
}

// validateTopic accepts slash separated literal segments and {param}
// segments. MQTT wildcards are rejected, parameters replace them.
func validateTopic(topic string) error {
	switch {
	case topic == "":
		return errors.New("topic cannot be empty")
	case strings.HasPrefix(topic, "/"):
		return errors.New("leading slash is not allowed")
	case strings.HasSuffix(topic, "/"):
		return errors.New("trailing slash is not allowed")
	}

	for segment := range strings.SplitSeq(topic, "/") {
		if err := validateSegment(segment); err != nil {
			return err
		}
	}

	return nil
}

func validateSegment(segment string) error {
	if segment == "" {
		return errors.New("empty segments are not allowed")
	}

	if strings.ContainsAny(segment, "#+") {
		return fmt.Errorf("wildcard in segment %q is not supported, use {param} instead", segment)
	}

	name, isParam := strings.CutPrefix(segment, "{")
	if !isParam {
		if strings.ContainsAny(segment, "{}") {
			return fmt.Errorf("invalid parameter syntax in segment %q", segment)
		}

		return nil
	}

	name, closed := strings.CutSuffix(name, "}")
	if !closed {
		return fmt.Errorf("invalid parameter syntax in segment %q", segment)
	}

	if !pathspec.ValidName(name) {
		return fmt.Errorf("invalid parameter name %q", name)
	}

	return nil
}

// subscriptionFilter turns sensors/{serialNumber}/command into sensors/+/command.
func subscriptionFilter(topic string) string {
	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		if strings.HasPrefix(segment, "{") {
			segments[i] = "+"
		}
	}

	return strings.Join(segments, "/")
}

// validateTopicParameters checks that the topic parameters and the documented
// ones are the same set.
func validateTopicParameters(topic string, documented []TopicParameter) error {
	names, err := pathspec.Params(topic)
	if err != nil {
		return fmt.Errorf("invalid topic %s: %w", topic, err)
	}

	for _, p := range documented {
		if p.Name == "" || p.Description == "" {
			return fmt.Errorf("parameters of topic %s need a name and a description", topic)
		}

		if !slices.Contains(names, p.Name) {
			return fmt.Errorf("documented parameter %s not found in topic", p.Name)
		}
	}

	for _, name := range names {
		if !slices.ContainsFunc(documented, func(p TopicParameter) bool { return p.Name == name }) {
			return fmt.Errorf("topic parameter %s not documented", name)
		}
	}

	return nil
}
