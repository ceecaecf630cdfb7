package daemon

import (
	"context"
	"encoding/base64"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/pkg/errors"
)

// SnsCommander publishes commands to an SNS topic for a daemon running in
// another process. The message body is the base64 encoded command.
type SnsCommander struct {
	arn    string
	client snsiface.SNSAPI
}

func NewSnsCommander(region string, arn string) (*SnsCommander, error) {
	// AWS client session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}
	return NewSnsCommanderWithClient(sns.New(sess), arn), nil
}

func NewSnsCommanderWithClient(client snsiface.SNSAPI, arn string) *SnsCommander {
	return &SnsCommander{arn: arn, client: client}
}

func (c *SnsCommander) Send(ctx context.Context, cmd Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}
	// ignore the returned message id
	_, err = c.client.PublishWithContext(ctx, &sns.PublishInput{
		Message:  aws.String(base64.StdEncoding.EncodeToString(data)),
		TopicArn: aws.String(c.arn),
	})
	if err != nil {
		return errors.Wrap(err, "fail to publish daemon command to sns")
	}
	return nil
}

// DecodeSnsMessage reverses the encoding used by SnsCommander.
func DecodeSnsMessage(body string) (Command, error) {
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Command{}, errors.Wrap(err, "malformed sns message")
	}
	return DecodeCommand(data)
}
